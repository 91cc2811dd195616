package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lambdaguard/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// captureInvoker records the last event and answers with a fixed response
type captureInvoker struct {
	event map[string]any
	resp  events.APIGatewayProxyResponse
}

func (c *captureInvoker) Invoke(_ context.Context, event map[string]any) (events.APIGatewayProxyResponse, error) {
	c.event = event
	return c.resp, nil
}

func testConfig() *config.Config {
	return &config.Config{Environment: "local"}
}

func TestEmulatorBuildsProxyEvent(t *testing.T) {
	invoker := &captureInvoker{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "ok"}}
	e := New(testConfig(), logrus.New())
	e.Mount("/profiles/:id", invoker)

	req := httptest.NewRequest(http.MethodPost, "/profiles/42?tag=a&tag=b", strings.NewReader(`{"name":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-9")
	req.Header.Add("Accept", "text/plain")
	req.Header.Add("Accept", "application/json")
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	event := invoker.event
	require.NotNil(t, event)
	assert.Equal(t, http.MethodPost, event["httpMethod"])
	assert.Equal(t, "/profiles/42", event["path"])
	assert.Equal(t, "/profiles/:id", event["resource"])
	assert.Equal(t, `{"name":"Ada"}`, event["body"])
	assert.Equal(t, false, event["isBase64Encoded"])
	assert.Equal(t, map[string]any{"id": "42"}, event["pathParameters"])
	assert.Equal(t, map[string]any{"tag": "b"}, event["queryStringParameters"])
	assert.Equal(t, map[string]any{"tag": []any{"a", "b"}}, event["multiValueQueryStringParameters"])

	headers := event["headers"].(map[string]any)
	assert.Equal(t, "application/json", headers["Content-Type"])
	assert.Equal(t, "text/plain,application/json", headers["Accept"])

	rc := event["requestContext"].(map[string]any)
	assert.Equal(t, "req-9", rc["requestId"])
	assert.Equal(t, "local", rc["stage"])
}

func TestEmulatorJoinsCookieHeaders(t *testing.T) {
	invoker := &captureInvoker{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusOK}}
	e := New(testConfig(), logrus.New())
	e.Mount("/profiles", invoker)

	req := httptest.NewRequest(http.MethodGet, "/profiles", nil)
	req.Header.Add("Cookie", "session=abc")
	req.Header.Add("Cookie", "theme=dark")
	e.Handler().ServeHTTP(httptest.NewRecorder(), req)

	headers := invoker.event["headers"].(map[string]any)
	assert.Equal(t, "session=abc; theme=dark", headers["Cookie"])
	multi := invoker.event["multiValueHeaders"].(map[string]any)
	assert.Equal(t, []any{"session=abc", "theme=dark"}, multi["Cookie"])
}

func TestEmulatorBinaryRequestBody(t *testing.T) {
	invoker := &captureInvoker{resp: events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}}
	e := New(testConfig(), logrus.New())
	e.Mount("/upload", invoker)

	raw := []byte{0xff, 0xfe, 0x00}
	req := httptest.NewRequest(http.MethodPut, "/upload", strings.NewReader(string(raw)))
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, true, invoker.event["isBase64Encoded"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), invoker.event["body"])
}

func TestEmulatorWritesResponse(t *testing.T) {
	invoker := &captureInvoker{resp: events.APIGatewayProxyResponse{
		StatusCode:        http.StatusCreated,
		Headers:           map[string]string{"Content-Type": "application/octet-stream"},
		MultiValueHeaders: map[string][]string{"Set-Cookie": {"a=1", "b=2"}},
		Body:              base64.StdEncoding.EncodeToString([]byte("binary")),
		IsBase64Encoded:   true,
	}}
	e := New(testConfig(), logrus.New())
	e.Mount("/files", invoker)

	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "binary", w.Body.String())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, w.Header().Values("Set-Cookie"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestEmulatorHealthAndNotFound(t *testing.T) {
	e := New(testConfig(), logrus.New())
	e.Mount("/a", &captureInvoker{})
	e.Mount("/b", &captureInvoker{})
	assert.Equal(t, []string{"/a", "/b"}, e.Routes())

	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(2), health["functions"])

	w = httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NotFound")
}
