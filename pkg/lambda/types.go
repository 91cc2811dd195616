package lambda

import (
	"context"

	"lambdaguard/internal/pipeline"
	"lambdaguard/internal/response"
)

// Request is a typed view of the invocation for handlers that do not need
// the raw event
type Request struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	RequestID   string            `json:"request_id"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]any    `json:"query_params"`
	PathParams  map[string]any    `json:"path_params"`
	Cookies     map[string]string `json:"cookies"`
	Claims      map[string]any    `json:"claims,omitempty"`
	Body        any               `json:"body"`

	State *pipeline.State `json:"-"`
}

// NewRequest builds the typed view of s. Query and path values carry the
// coerced types produced by schema validation.
func NewRequest(s *pipeline.State) *Request {
	req := &Request{
		Method:      s.Method,
		RequestID:   s.Context.RequestID,
		Headers:     map[string]string{},
		QueryParams: sectionMap(s.Event["queryStringParameters"]),
		PathParams:  sectionMap(s.Event["pathParameters"]),
		Cookies:     s.Cookies,
		Claims:      s.Claims,
		Body:        s.Body,
		State:       s,
	}
	if path, ok := s.Event["path"].(string); ok {
		req.Path = path
	}
	for k, v := range sectionMap(s.Event["headers"]) {
		if str, ok := v.(string); ok {
			req.Headers[k] = str
		}
	}
	return req
}

func sectionMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out
	}
	return map[string]any{}
}

// Response lets a handler set status, headers and cookies
type Response = response.Result

// HandlerFunc is a handler working on the typed Request
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Invoke implements pipeline.Handler
func (f HandlerFunc) Invoke(ctx context.Context, s *pipeline.State) pipeline.Outcome {
	return pipeline.HandlerFunc(func(ctx context.Context, s *pipeline.State) (any, error) {
		return f(ctx, NewRequest(s))
	}).Invoke(ctx, s)
}
