package pipeline

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lambdaguard/internal/apierrors"
	"lambdaguard/internal/auth"
	"lambdaguard/internal/protect"
	"lambdaguard/internal/schema"
)

func clearJWTEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		auth.VarAlgorithm, auth.VarSecret, auth.VarPublicKey, auth.VarTokenLocation,
		auth.VarXSRF, auth.VarXSRFTokenLocation, auth.VarXSRFClaimLocation,
	} {
		t.Setenv(name, "")
	}
}

func echoExecutor(decl *schema.Declaration) *Executor {
	return &Executor{
		Handler: HandlerFunc(func(_ context.Context, s *State) (any, error) {
			return s.Body, nil
		}),
		Schema: decl,
	}
}

func TestEventStageNormalizes(t *testing.T) {
	tests := []struct {
		name    string
		event   map[string]any
		body    any
		cookies map[string]string
	}{
		{
			name:  "json body",
			event: map[string]any{"body": `{"name":"Ada"}`},
			body:  map[string]any{"name": "Ada"},
		},
		{
			name: "base64 json body",
			event: map[string]any{
				"body":            base64.StdEncoding.EncodeToString([]byte(`[1,2]`)),
				"isBase64Encoded": true,
			},
			body: []any{1.0, 2.0},
		},
		{
			name: "form body",
			event: map[string]any{
				"headers": map[string]string{"content-type": "application/x-www-form-urlencoded; charset=utf-8"},
				"body":    "name=Ada&tag=a&tag=b",
			},
			body: map[string]any{"name": "Ada", "tag": []any{"a", "b"}},
		},
		{
			name: "plain text",
			event: map[string]any{
				"headers": map[string]any{"Content-Type": "text/plain"},
				"body":    `{"not":"decoded"}`,
			},
			body: `{"not":"decoded"}`,
		},
		{
			name:  "undecodable json",
			event: map[string]any{"body": "{broken"},
			body:  "{broken",
		},
		{
			name:  "empty body",
			event: map[string]any{"body": ""},
			body:  nil,
		},
		{
			name: "cookies",
			event: map[string]any{
				"headers": map[string]any{"Cookie": "session=abc; theme=dark"},
			},
			cookies: map[string]string{"session": "abc", "theme": "dark"},
		},
		{
			name: "malformed cookies",
			event: map[string]any{
				"headers": map[string]any{"cookie": "\x00bad"},
			},
			cookies: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.event["body"]
			s := NewState(tt.event, nil)
			require.NoError(t, EventStage()(context.Background(), s))

			assert.Equal(t, tt.body, s.Body)
			assert.Equal(t, tt.body, s.Event["body"])
			assert.Equal(t, raw, s.RawBody)
			assert.NotNil(t, s.Event["queryStringParameters"])
			assert.NotNil(t, s.Event["pathParameters"])
			if tt.cookies != nil {
				assert.Equal(t, tt.cookies, s.Cookies)
			}
		})
	}
}

func TestMethodStage(t *testing.T) {
	get := echoExecutor(nil)
	resolve := func(method string) *Executor {
		if method == http.MethodGet {
			return get
		}
		return nil
	}

	s := NewState(map[string]any{"httpMethod": "get"}, nil)
	require.NoError(t, MethodStage(resolve)(context.Background(), s))
	assert.Equal(t, http.MethodGet, s.Method)
	assert.Same(t, get, s.Executor)

	s = NewState(map[string]any{
		"requestContext": map[string]any{"http": map[string]any{"method": "GET"}},
	}, nil)
	require.NoError(t, MethodStage(resolve)(context.Background(), s))
	assert.Equal(t, http.MethodGet, s.Method)
}

func TestExecuteStageMissingExecutor(t *testing.T) {
	s := NewState(nil, nil)
	s.Method = http.MethodPatch

	err := ExecuteStage()(context.Background(), s)
	require.Error(t, err)

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusMethodNotAllowed, apiErr.StatusCode())
	assert.Equal(t, "handler not defined for http method: PATCH", apiErr.Message)
}

func TestDefaultPipeline(t *testing.T) {
	clearJWTEnv(t)

	scanner, err := protect.NewScanner(protect.Options{Mode: protect.ModeFail}, nil)
	require.NoError(t, err)
	authenticator, err := auth.New(auth.Options{Algorithm: "HS256", Secret: "s"}, nil, nil)
	require.NoError(t, err)

	decl := schema.NewDeclaration().Body(schema.Fields{
		"name": schema.String().Trim().Required(),
		"age":  schema.Number().Required(),
	})
	require.NoError(t, decl.Compile())

	post := echoExecutor(decl)
	p := NewDefault(Dependencies{
		Resolve: func(method string) *Executor {
			if method == http.MethodPost {
				return post
			}
			return nil
		},
		Scanner:       scanner,
		Authenticator: authenticator,
	})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).SignedString([]byte("s"))
	require.NoError(t, err)

	newEvent := func(body string) map[string]any {
		return map[string]any{
			"httpMethod": "POST",
			"headers":    map[string]any{"Authorization": "Bearer " + token},
			"body":       body,
		}
	}

	t.Run("success", func(t *testing.T) {
		s := NewState(newEvent(`{"name":"  Ada  ","age":"36"}`), nil)
		require.NoError(t, p.Run(context.Background(), s))
		assert.Equal(t, map[string]any{"name": "Ada", "age": 36.0}, s.Result)
		assert.Equal(t, "user-1", s.Claims["sub"])
		assert.True(t, s.IsIgnored("Authorization"))
	})

	t.Run("validation failure", func(t *testing.T) {
		s := NewState(newEvent(`{"name":"  A  "}`), nil)
		err := p.Run(context.Background(), s)
		require.Error(t, err)
		assert.True(t, apierrors.IsValidation(err))
		assert.Equal(t, `"age" is required`, err.Error())
		assert.Nil(t, s.Result)
	})

	t.Run("injection stops before authentication", func(t *testing.T) {
		event := newEvent(`{"name":"admin' --","age":1}`)
		delete(event, "headers")
		s := NewState(event, nil)
		err := p.Run(context.Background(), s)
		require.Error(t, err)
		assert.True(t, apierrors.IsInjection(err))
		assert.Equal(t, "ESCAPED_COMMENT: name", err.Error())
	})

	t.Run("authentication failure", func(t *testing.T) {
		event := newEvent(`{"name":"Ada","age":1}`)
		event["headers"] = map[string]any{}
		err := p.Run(context.Background(), NewState(event, nil))
		require.Error(t, err)
		assert.True(t, apierrors.IsAuthentication(err))
	})

	t.Run("method not allowed", func(t *testing.T) {
		event := newEvent("")
		event["httpMethod"] = "GET"
		err := p.Run(context.Background(), NewState(event, nil))
		require.Error(t, err)
		assert.ErrorIs(t, err, apierrors.ErrMethodNotAllowed)
	})
}
