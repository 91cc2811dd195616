package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel error
		status   int
	}{
		{"configuration", Configuration("unsupported algorithm: %s", "XX1"), ErrConfiguration, http.StatusInternalServerError},
		{"authentication", Authentication("authentication token is missing", nil), ErrAuthentication, http.StatusForbidden},
		{"validation", Validation("age", `"age" is required`), ErrValidation, http.StatusBadRequest},
		{"injection", Injection("name", "ESCAPED_OR", 0), ErrInjection, http.StatusBadRequest},
		{"method", MethodNotAllowed("PATCH"), ErrMethodNotAllowed, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.status, tt.err.StatusCode())

			wrapped := fmt.Errorf("stage failed: %w", tt.err)
			var target *Error
			assert.True(t, errors.As(wrapped, &target))
			assert.Equal(t, tt.err.Kind, target.Kind)
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "unsupported algorithm: XX1", Configuration("unsupported algorithm: %s", "XX1").Error())
	assert.Equal(t, "ESCAPED_OR: name", Injection("name", "ESCAPED_OR", 0).Error())
	assert.Equal(t, "handler not defined for http method: PATCH", MethodNotAllowed("PATCH").Error())
}

func TestAuthenticationKeepsCause(t *testing.T) {
	cause := errors.New("token is expired")
	err := Authentication("invalid authentication token", cause)

	assert.True(t, IsAuthentication(err))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "invalid authentication token", err.Error())
}

func TestInjectionCustomStatus(t *testing.T) {
	err := Injection("q", "ESCAPED_UNION", http.StatusForbidden)
	assert.Equal(t, http.StatusForbidden, err.StatusCode())
	assert.Equal(t, "q", err.Field)
	assert.Equal(t, "ESCAPED_UNION", err.Category)
}

func TestWithStatus(t *testing.T) {
	assert.Nil(t, WithStatus(nil, 404))

	err := WithStatus(errors.New("not found"), http.StatusNotFound)
	var sc interface{ StatusCode() int }
	assert.True(t, errors.As(err, &sc))
	assert.Equal(t, http.StatusNotFound, sc.StatusCode())
	assert.Equal(t, "not found", err.Error())
}
