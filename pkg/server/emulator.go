// Package server runs APIs locally behind gin, translating HTTP requests
// into API Gateway proxy events the way the gateway does.
package server

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambdaguard/internal/config"
	"lambdaguard/internal/middleware"
	"lambdaguard/internal/response"
)

// Invoker processes one proxy event. *lambda.API implements it.
type Invoker interface {
	Invoke(ctx context.Context, event map[string]any) (events.APIGatewayProxyResponse, error)
}

// Emulator serves mounted APIs over HTTP
type Emulator struct {
	engine *gin.Engine
	config *config.Config
	logger *logrus.Logger
	routes []string
}

// New creates an emulator with the standard middleware chain
func New(cfg *config.Config, logger *logrus.Logger) *Emulator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(logger))
	engine.Use(middleware.StructuredLogger(logger))
	engine.Use(middleware.PerformanceMonitor(0, logger))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.RequestSizeLimit(0))
	engine.Use(middleware.RateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger))
	if cfg.CORS.AllowOrigin != "" {
		engine.Use(middleware.CORS(cfg.CORS.AllowOrigin))
	}

	e := &Emulator{
		engine: engine,
		config: cfg,
		logger: logger,
	}

	engine.GET("/health", e.health)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.Envelope{Type: "NotFound", Message: "no function mounted at " + c.Request.URL.Path})
	})

	return e
}

// Mount routes every method on resource to api. resource uses gin path
// syntax; named segments become pathParameters.
func (e *Emulator) Mount(resource string, api Invoker) {
	e.engine.Any(resource, func(c *gin.Context) {
		event, err := EventFromRequest(c, resource, e.config.Environment)
		if err != nil {
			WriteResponse(c, response.ProcessError(err, nil))
			return
		}

		resp, err := api.Invoke(c.Request.Context(), event)
		if err != nil {
			resp = response.ProcessError(err, nil)
		}
		WriteResponse(c, resp)
	})
	e.routes = append(e.routes, resource)

	e.logger.WithField("resource", resource).Info("Function mounted")
}

// Handler returns the HTTP handler
func (e *Emulator) Handler() http.Handler {
	return e.engine
}

// Routes returns the mounted resources in mount order
func (e *Emulator) Routes() []string {
	return append([]string(nil), e.routes...)
}

func (e *Emulator) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": e.config.Environment,
		"functions":   len(e.routes),
	})
}

// EventFromRequest builds the proxy event for the request. Bodies that are
// not valid UTF-8 are base64 encoded.
func EventFromRequest(c *gin.Context, resource, stage string) (map[string]any, error) {
	req := c.Request

	var body string
	base64Encoded := false
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if utf8.Valid(data) {
			body = string(data)
		} else {
			body = base64.StdEncoding.EncodeToString(data)
			base64Encoded = true
		}
	}

	headers := map[string]any{}
	multiHeaders := map[string]any{}
	for name, values := range req.Header {
		separator := ","
		if name == "Cookie" {
			separator = "; "
		}
		headers[name] = strings.Join(values, separator)
		multiHeaders[name] = toAny(values)
	}
	if req.Host != "" {
		headers["Host"] = req.Host
	}

	query := map[string]any{}
	multiQuery := map[string]any{}
	for name, values := range req.URL.Query() {
		query[name] = values[len(values)-1]
		multiQuery[name] = toAny(values)
	}

	params := map[string]any{}
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}

	return map[string]any{
		"resource":                        resource,
		"path":                            req.URL.Path,
		"httpMethod":                      req.Method,
		"headers":                         headers,
		"multiValueHeaders":               multiHeaders,
		"queryStringParameters":           query,
		"multiValueQueryStringParameters": multiQuery,
		"pathParameters":                  params,
		"stageVariables":                  nil,
		"requestContext": map[string]any{
			"requestId":        c.GetString(middleware.RequestIDKey),
			"stage":            stage,
			"resourcePath":     resource,
			"httpMethod":       req.Method,
			"path":             req.URL.Path,
			"requestTimeEpoch": time.Now().UnixMilli(),
			"identity": map[string]any{
				"sourceIp":  c.ClientIP(),
				"userAgent": req.UserAgent(),
			},
		},
		"body":            body,
		"isBase64Encoded": base64Encoded,
	}, nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// WriteResponse writes a proxy response. Multi-value headers are added after
// single-value headers of the same name.
func WriteResponse(c *gin.Context, resp events.APIGatewayProxyResponse) {
	for name, value := range resp.Headers {
		c.Writer.Header().Set(name, value)
	}
	for name, values := range resp.MultiValueHeaders {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			resp = response.ProcessError(err, nil)
			c.Writer.Header().Set("Content-Type", "application/json")
			decoded = []byte(resp.Body)
		}
		body = decoded
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.Status(status)
	if len(body) > 0 && status != http.StatusNoContent && status != http.StatusNotModified {
		_, _ = c.Writer.Write(body)
	}
}
