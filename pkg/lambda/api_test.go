package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lambdaguard/internal/apierrors"
	"lambdaguard/internal/auth"
	"lambdaguard/internal/config"
	"lambdaguard/internal/pipeline"
	"lambdaguard/internal/protect"
	"lambdaguard/internal/recorder"
	"lambdaguard/internal/response"
	"lambdaguard/internal/schema"
)

const testSecret = "s"

func clearJWTEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		auth.VarAlgorithm, auth.VarSecret, auth.VarPublicKey, auth.VarTokenLocation,
		auth.VarXSRF, auth.VarXSRFTokenLocation, auth.VarXSRFClaimLocation,
	} {
		t.Setenv(name, "")
	}
}

func decodeEnvelope(t *testing.T, resp events.APIGatewayProxyResponse) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &envelope))
	return envelope
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func profileSchema() *schema.Declaration {
	return schema.NewDeclaration().Body(schema.Fields{
		"name": schema.String().Trim().Required(),
		"age":  schema.Number().Required(),
	})
}

func TestNewAPIConfigurationErrors(t *testing.T) {
	clearJWTEnv(t)

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "unknown stage", opts: []Option{WithStage("before", func(context.Context, *pipeline.State) error { return nil })}},
		{name: "unknown disabled stage", opts: []Option{WithoutStage("after")}},
		{name: "unsupported algorithm", opts: []Option{WithJWT(auth.Options{Algorithm: "XX999"})}},
		{name: "missing secret", opts: []Option{WithJWT(auth.Options{Algorithm: "HS256"})}},
		{name: "invalid protection mode", opts: []Option{WithProtection(protect.Options{Mode: "loud"})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, err := NewAPI(tt.opts...)
			assert.Nil(t, api)
			require.Error(t, err)
			assert.True(t, apierrors.IsConfiguration(err))
		})
	}
}

func TestHandleRegistrationErrors(t *testing.T) {
	clearJWTEnv(t)
	api, err := NewAPI()
	require.NoError(t, err)

	handler := func(context.Context, *pipeline.State) (any, error) { return nil, nil }

	assert.True(t, apierrors.IsConfiguration(api.Handle("TRACE", handler)))
	assert.True(t, apierrors.IsConfiguration(api.GET("not a handler")))
	assert.True(t, apierrors.IsConfiguration(api.POST(handler, profileSchema(), profileSchema())))

	bad := schema.NewDeclaration().Body(schema.Fields{"n": schema.Number().Min(2).Max(1)})
	assert.True(t, apierrors.IsConfiguration(api.PUT(handler, bad)))
}

func TestInvokeDefaultStatus(t *testing.T) {
	clearJWTEnv(t)
	api, err := NewAPI()
	require.NoError(t, err)

	noContent := func(context.Context, *pipeline.State) (any, error) { return nil, nil }
	for _, register := range []func(any, ...*schema.Declaration) error{
		api.GET, api.HEAD, api.POST, api.PUT, api.PATCH, api.DELETE,
	} {
		require.NoError(t, register(noContent))
	}

	expected := map[string]int{
		http.MethodGet:    http.StatusOK,
		http.MethodHead:   http.StatusOK,
		http.MethodPost:   http.StatusCreated,
		http.MethodPut:    http.StatusOK,
		http.MethodPatch:  http.StatusOK,
		http.MethodDelete: http.StatusNoContent,
	}
	for method, status := range expected {
		resp, err := api.Invoke(context.Background(), map[string]any{"httpMethod": method})
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, method)
		assert.Empty(t, resp.Body, method)
	}
}

func TestInvokeAuthenticatedValidatedRequest(t *testing.T) {
	clearJWTEnv(t)

	rec := recorder.NewMemory(nil)
	api, err := NewAPI(
		WithJWT(auth.Options{Algorithm: "HS256", Secret: testSecret}),
		WithProtection(protect.Options{Mode: protect.ModeFail}),
		WithCORS(CORSOptions{AllowOrigin: "https://app.example.com", AllowMethods: []string{"GET", "POST"}}),
		WithRecorder(rec),
	)
	require.NoError(t, err)

	require.NoError(t, api.POST(HandlerFunc(func(_ context.Context, req *Request) (any, error) {
		body := req.Body.(map[string]any)
		return &Response{
			Body:      map[string]any{"greeting": "hello " + body["name"].(string), "sub": req.Claims["sub"]},
			SetCookie: []*http.Cookie{{Name: "seen", Value: "1"}},
		}, nil
	}), profileSchema()))

	token := signedToken(t, jwt.MapClaims{"sub": "user-1"})
	event := func(body string, headers map[string]any) map[string]any {
		return map[string]any{
			"httpMethod": "POST",
			"headers":    headers,
			"body":       body,
		}
	}
	authHeaders := map[string]any{"Authorization": "Bearer " + token}

	t.Run("success", func(t *testing.T) {
		resp, err := api.Invoke(context.Background(), event(`{"name":" Ada ","age":36}`, authHeaders))
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.JSONEq(t, `{"greeting":"hello Ada","sub":"user-1"}`, resp.Body)
		assert.Equal(t, "https://app.example.com", resp.Headers["Access-Control-Allow-Origin"])
		assert.Equal(t, "GET, POST", resp.Headers["Access-Control-Allow-Methods"])
		assert.Equal(t, "seen=1", resp.Headers["Set-Cookie"])
	})

	t.Run("missing required field", func(t *testing.T) {
		resp, _ := api.Invoke(context.Background(), event(`{"name":"  A  "}`, authHeaders))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		envelope := decodeEnvelope(t, resp)
		assert.Equal(t, "ValidationFailure", envelope.Type)
		assert.Equal(t, `"age" is required`, envelope.Message)
		assert.Equal(t, "https://app.example.com", resp.Headers["Access-Control-Allow-Origin"])
	})

	t.Run("unknown field", func(t *testing.T) {
		resp, _ := api.Invoke(context.Background(), event(`{"name":"A","age":1,"other":true}`, authHeaders))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, `"other" is not allowed`, decodeEnvelope(t, resp).Message)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, _ := api.Invoke(context.Background(), event(`{"name":"A","age":1}`, map[string]any{}))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		envelope := decodeEnvelope(t, resp)
		assert.Equal(t, "AuthenticationFailure", envelope.Type)
		assert.Equal(t, "authentication token is missing", envelope.Message)
	})

	t.Run("injection", func(t *testing.T) {
		resp, _ := api.Invoke(context.Background(), event(`{"name":"1' or 1=1;drop table user;","age":1}`, authHeaders))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		envelope := decodeEnvelope(t, resp)
		assert.Equal(t, "InjectionDetected", envelope.Type)
		assert.Equal(t, "ESCAPED_OR: name", envelope.Message)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, _ := api.Invoke(context.Background(), map[string]any{"httpMethod": "GET", "headers": authHeaders})
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "handler not defined for http method: GET", decodeEnvelope(t, resp).Message)
	})

	snapshot, ok := rec.Snapshot("protect")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"mode": "fail"}, snapshot)
	_, ok = rec.Snapshot(auth.RecorderNamespace)
	assert.True(t, ok)
}

func TestInvokeHandlerErrors(t *testing.T) {
	clearJWTEnv(t)
	api, err := NewAPI()
	require.NoError(t, err)

	require.NoError(t, api.GET(func(context.Context, *pipeline.State) (any, error) {
		return nil, apierrors.WithStatus(errors.New("profile not found"), http.StatusNotFound)
	}))
	require.NoError(t, api.DELETE(func(context.Context, *pipeline.State) (any, error) {
		return nil, errors.New("database unavailable")
	}))

	resp, _ := api.Invoke(context.Background(), map[string]any{"httpMethod": "GET"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, response.Envelope{Type: "Error", Message: "profile not found"}, decodeEnvelope(t, resp))

	resp, _ = api.Invoke(context.Background(), map[string]any{"httpMethod": "DELETE"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestErrorTransform(t *testing.T) {
	clearJWTEnv(t)

	var seen []error
	api, err := NewAPI(WithErrorTransform(func(_ context.Context, s *pipeline.State, err error) error {
		seen = append(seen, err)
		if s.Method == http.MethodPost {
			return &apierrors.Error{
				Kind:    apierrors.KindValidation,
				Status:  http.StatusUnprocessableEntity,
				Message: "rewritten",
				Body:    map[string]any{"code": "E_INPUT"},
			}
		}
		return nil
	}))
	require.NoError(t, err)

	failing := func(context.Context, *pipeline.State) (any, error) { return nil, errors.New("original") }
	require.NoError(t, api.GET(failing))
	require.NoError(t, api.POST(failing))

	// nil keeps the original error
	resp, _ := api.Invoke(context.Background(), map[string]any{"httpMethod": "GET"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "original", decodeEnvelope(t, resp).Message)

	resp, _ = api.Invoke(context.Background(), map[string]any{"httpMethod": "POST"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.JSONEq(t, `{"code":"E_INPUT"}`, resp.Body)

	assert.Len(t, seen, 2)
}

func TestFinallyAndStageOverride(t *testing.T) {
	clearJWTEnv(t)

	var finalStatus int
	var beforeRan bool
	api, err := NewAPI(
		WithStage(pipeline.StageEvent, func(_ context.Context, s *pipeline.State) error {
			beforeRan = true
			s.Body = "replaced"
			return nil
		}),
		WithFinally(func(_ context.Context, _ *pipeline.State, resp events.APIGatewayProxyResponse) {
			finalStatus = resp.StatusCode
		}),
	)
	require.NoError(t, err)
	require.NoError(t, api.GET(func(_ context.Context, s *pipeline.State) (any, error) {
		return s.Body, nil
	}))

	resp, _ := api.Invoke(context.Background(), map[string]any{"httpMethod": "GET", "body": `{"a":1}`})
	assert.True(t, beforeRan)
	assert.Equal(t, "replaced", resp.Body)
	assert.Equal(t, http.StatusOK, finalStatus)
}

func TestInvokeRendersPanics(t *testing.T) {
	clearJWTEnv(t)

	get := func(context.Context, *pipeline.State) (any, error) { return "ok", nil }
	failing := func(context.Context, *pipeline.State) (any, error) { return nil, errors.New("failed") }

	tests := []struct {
		name    string
		opts    []Option
		handler func(context.Context, *pipeline.State) (any, error)
		message string
	}{
		{
			name: "stage",
			opts: []Option{WithStage(pipeline.StageMethod, func(context.Context, *pipeline.State) error {
				panic("boom")
			})},
			handler: get,
			message: "invocation panic: boom",
		},
		{
			name: "error transform",
			opts: []Option{WithErrorTransform(func(context.Context, *pipeline.State, error) error {
				panic("transform")
			})},
			handler: failing,
			message: "invocation panic: transform",
		},
		{
			name: "finally",
			opts: []Option{WithFinally(func(context.Context, *pipeline.State, events.APIGatewayProxyResponse) {
				panic("finally")
			})},
			handler: get,
			message: "finally panic: finally",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, err := NewAPI(append(tt.opts, WithHeaders(map[string]any{"X-Service": "profiles"}))...)
			require.NoError(t, err)
			require.NoError(t, api.GET(tt.handler))

			var resp events.APIGatewayProxyResponse
			require.NotPanics(t, func() {
				resp, err = api.Invoke(context.Background(), map[string]any{"httpMethod": "GET"})
			})
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, "profiles", resp.Headers["X-Service"])

			envelope := decodeEnvelope(t, resp)
			assert.Equal(t, "Error", envelope.Type)
			assert.Equal(t, tt.message, envelope.Message)
		})
	}
}

func TestWithoutStage(t *testing.T) {
	clearJWTEnv(t)

	api, err := NewAPI(
		WithJWT(auth.Options{Algorithm: "HS256", Secret: testSecret}),
		WithoutStage(pipeline.StageAuthentication),
	)
	require.NoError(t, err)
	require.NoError(t, api.GET(func(context.Context, *pipeline.State) (any, error) { return "open", nil }))

	resp, _ := api.Invoke(context.Background(), map[string]any{"httpMethod": "GET"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "open", resp.Body)
}

func TestAsyncAndCallbackHandlers(t *testing.T) {
	clearJWTEnv(t)
	api, err := NewAPI()
	require.NoError(t, err)

	require.NoError(t, api.GET(func(context.Context, *pipeline.State) <-chan pipeline.Outcome {
		ch := make(chan pipeline.Outcome, 1)
		go func() { ch <- pipeline.Outcome{Value: map[string]any{"async": true}} }()
		return ch
	}))
	require.NoError(t, api.PUT(func(_ context.Context, _ *pipeline.State, done func(any, error)) {
		go done(nil, apierrors.WithStatus(errors.New("conflict"), http.StatusConflict))
	}))

	resp, _ := api.Invoke(context.Background(), map[string]any{"httpMethod": "GET"})
	assert.JSONEq(t, `{"async":true}`, resp.Body)

	resp, _ = api.Invoke(context.Background(), map[string]any{"httpMethod": "PUT"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleProxyRequest(t *testing.T) {
	clearJWTEnv(t)
	api, err := NewAPI()
	require.NoError(t, err)

	require.NoError(t, api.GET(func(_ context.Context, req *Request) (any, error) {
		return map[string]any{
			"path":   req.Path,
			"id":     req.PathParams["id"],
			"limit":  req.QueryParams["limit"],
			"cookie": req.Cookies["session"],
		}, nil
	}, schema.NewDeclaration().
		Params(schema.Fields{"id": schema.String().Required()}).
		Query(schema.Fields{"limit": schema.Integer().Default(int64(10))})))

	resp, err := api.HandleProxyRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:     "GET",
		Path:           "/profiles/42",
		Headers:        map[string]string{"Cookie": "session=abc"},
		PathParameters: map[string]string{"id": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"path":"/profiles/42","id":"42","limit":10,"cookie":"abc"}`, resp.Body)
}

func TestConfigLoaderSections(t *testing.T) {
	clearJWTEnv(t)

	loader := config.NewStaticLoader(map[string]any{
		"protect": map[string]any{"mode": "fail"},
		"jwt":     map[string]any{"algorithm": "HS256", "secret": testSecret},
	})
	api, err := NewAPI(WithConfigLoader(loader))
	require.NoError(t, err)
	require.NoError(t, api.GET(func(context.Context, *pipeline.State) (any, error) { return "ok", nil }))

	assert.Equal(t, auth.StateConfigured, api.Authenticator().State())

	resp, _ := api.Invoke(context.Background(), map[string]any{"httpMethod": "GET"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = api.Invoke(context.Background(), map[string]any{
		"httpMethod":            "GET",
		"headers":               map[string]any{"Authorization": signedToken(t, jwt.MapClaims{"sub": "x"})},
		"queryStringParameters": map[string]any{"q": "x'union select"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InjectionDetected", decodeEnvelope(t, resp).Type)

	// removing the jwt section disables authentication for later invocations
	loader.Update(map[string]any{})
	assert.Equal(t, auth.StateDisabled, api.Authenticator().State())
	resp, _ = api.Invoke(context.Background(), map[string]any{"httpMethod": "GET"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
