// Package lambda exposes the protected handler API for API Gateway proxy
// integrations.
//
//	api, err := lambda.NewAPI(
//		lambda.WithJWT(auth.Options{Algorithm: "HS256", Secret: secret}),
//		lambda.WithProtection(protect.Options{Mode: protect.ModeFail}),
//	)
//	api.GET(getProfile)
//	api.POST(createProfile, profileSchema)
//	api.Start()
package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"lambdaguard/internal/apierrors"
	"lambdaguard/internal/auth"
	"lambdaguard/internal/pipeline"
	"lambdaguard/internal/protect"
	"lambdaguard/internal/recorder"
	"lambdaguard/internal/response"
	"lambdaguard/internal/schema"
)

// Methods handlers can be bound to
var Methods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// API runs invocations through the pipeline. Handlers must be registered
// before the first invocation.
type API struct {
	pipeline       *pipeline.Pipeline
	scanner        *protect.Scanner
	authenticator  *auth.Authenticator
	headers        map[string]any
	errorTransform ErrorTransform
	finally        FinallyFunc
	logger         *logrus.Logger

	mu        sync.RWMutex
	executors map[string]*pipeline.Executor
}

// NewAPI builds an API. Configuration problems, such as an unsupported
// algorithm, missing key material or an unknown stage name, are returned
// here rather than at invocation time.
func NewAPI(opts ...Option) (*API, error) {
	s := &settings{
		headers: map[string]any{},
		stages:  map[string]pipeline.StageFunc{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.recorder == nil {
		s.recorder = recorder.Nop{}
	}

	scanner, err := newScanner(s)
	if err != nil {
		return nil, err
	}
	s.recorder.Record("protect", map[string]any{"mode": string(scanner.Mode())})

	authenticator, err := auth.New(s.jwt, s.recorder, s.logger)
	if err != nil {
		return nil, err
	}
	if s.loader != nil {
		if err := authenticator.Watch(s.loader); err != nil {
			return nil, err
		}
	}

	a := &API{
		scanner:        scanner,
		authenticator:  authenticator,
		headers:        s.headers,
		errorTransform: s.errorTransform,
		finally:        s.finally,
		logger:         s.logger,
		executors:      map[string]*pipeline.Executor{},
	}

	a.pipeline = pipeline.NewDefault(pipeline.Dependencies{
		Resolve:       a.executor,
		Scanner:       scanner,
		Authenticator: authenticator,
		Logger:        s.logger,
	})
	for name, fn := range s.stages {
		if err := a.pipeline.Set(name, fn); err != nil {
			return nil, err
		}
	}
	for _, name := range s.disabled {
		if err := a.pipeline.Disable(name); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func newScanner(s *settings) (*protect.Scanner, error) {
	var opts protect.Options
	switch {
	case s.protection != nil:
		opts = *s.protection
	case s.loader != nil && s.loader.IsLoaded():
		if section, ok := s.loader.Get()["protect"].(map[string]any); ok {
			decoded, err := protect.DecodeOptions(section)
			if err != nil {
				return nil, apierrors.Configuration("%v", err)
			}
			opts = decoded
		}
	}
	return protect.NewScanner(opts, s.logger)
}

// Authenticator returns the API's authenticator
func (a *API) Authenticator() *auth.Authenticator {
	return a.authenticator
}

// Handle binds handler to method. handler may be a HandlerFunc, a
// pipeline.Handler, or a function of one of these shapes:
//
//	func(context.Context, *pipeline.State) (any, error)
//	func(context.Context, *pipeline.State) <-chan pipeline.Outcome
//	func(context.Context, *pipeline.State, func(any, error))
//	func(context.Context, *lambda.Request) (any, error)
//
// At most one schema declaration may be given; it is compiled here.
func (a *API) Handle(method string, handler any, decl ...*schema.Declaration) error {
	method = strings.ToUpper(method)
	if !isMethod(method) {
		return apierrors.Configuration("unsupported http method: %s", method)
	}
	if len(decl) > 1 {
		return apierrors.Configuration("only one schema may be bound to %s", method)
	}

	if fn, ok := handler.(func(context.Context, *Request) (any, error)); ok {
		handler = HandlerFunc(fn)
	}
	h, err := pipeline.Normalize(handler)
	if err != nil {
		return err
	}

	executor := &pipeline.Executor{Handler: h}
	if len(decl) == 1 && decl[0] != nil {
		if err := decl[0].Compile(); err != nil {
			return err
		}
		executor.Schema = decl[0]
	}

	a.mu.Lock()
	a.executors[method] = executor
	a.mu.Unlock()
	return nil
}

func (a *API) GET(handler any, decl ...*schema.Declaration) error {
	return a.Handle(http.MethodGet, handler, decl...)
}

func (a *API) HEAD(handler any, decl ...*schema.Declaration) error {
	return a.Handle(http.MethodHead, handler, decl...)
}

func (a *API) POST(handler any, decl ...*schema.Declaration) error {
	return a.Handle(http.MethodPost, handler, decl...)
}

func (a *API) PUT(handler any, decl ...*schema.Declaration) error {
	return a.Handle(http.MethodPut, handler, decl...)
}

func (a *API) PATCH(handler any, decl ...*schema.Declaration) error {
	return a.Handle(http.MethodPatch, handler, decl...)
}

func (a *API) DELETE(handler any, decl ...*schema.Declaration) error {
	return a.Handle(http.MethodDelete, handler, decl...)
}

func (a *API) OPTIONS(handler any, decl ...*schema.Declaration) error {
	return a.Handle(http.MethodOptions, handler, decl...)
}

func isMethod(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

func (a *API) executor(method string) *pipeline.Executor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.executors[method]
}

// Invoke processes one proxy event. Every failure is rendered into the
// response, so the returned error is always nil.
func (a *API) Invoke(ctx context.Context, event map[string]any) (events.APIGatewayProxyResponse, error) {
	start := time.Now()

	state := pipeline.NewState(event, pipeline.NewInvocationContext(ctx, event))

	resp, err := a.process(ctx, state)
	if a.finally != nil {
		if ferr := a.runFinally(ctx, state, resp); ferr != nil {
			err = ferr
			resp = response.ProcessError(err, a.headers)
		}
	}

	a.logInvocation(state, resp, err, time.Since(start))
	return resp, nil
}

// process runs the pipeline and renders its outcome. A panic in a stage or
// the error transform is rendered like any other error.
func (a *API) process(ctx context.Context, state *pipeline.State) (resp events.APIGatewayProxyResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invocation panic: %v", r)
			resp = response.ProcessError(err, a.headers)
		}
	}()

	err = a.pipeline.Run(ctx, state)
	if err == nil {
		resp, err = response.ProcessResult(state.Result, state.Method, a.headers)
	}
	if err != nil {
		err = a.transform(ctx, state, err)
		resp = response.ProcessError(err, a.headers)
	}
	return resp, err
}

func (a *API) runFinally(ctx context.Context, state *pipeline.State, resp events.APIGatewayProxyResponse) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("finally panic: %v", r)
		}
	}()
	a.finally(ctx, state, resp)
	return nil
}

func (a *API) transform(ctx context.Context, s *pipeline.State, err error) error {
	if a.errorTransform == nil {
		return err
	}
	if transformed := a.errorTransform(ctx, s, err); transformed != nil {
		return transformed
	}
	return err
}

func (a *API) logInvocation(s *pipeline.State, resp events.APIGatewayProxyResponse, err error, latency time.Duration) {
	fields := logrus.Fields{
		"request_id":  s.Context.RequestID,
		"method":      s.Method,
		"status_code": resp.StatusCode,
		"latency_ms":  float64(latency.Nanoseconds()) / 1000000,
	}
	if s.Context.FunctionName != "" {
		fields["function_name"] = s.Context.FunctionName
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	entry := a.logger.WithFields(fields)
	switch {
	case resp.StatusCode >= 500:
		entry.Error("Invocation failed")
	case resp.StatusCode >= 400:
		entry.Warn("Invocation rejected")
	default:
		entry.Info("Invocation completed")
	}
}

// HandleProxyRequest processes a typed API Gateway request.
func (a *API) HandleProxyRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	event, err := toEvent(req)
	if err != nil {
		return response.ProcessError(err, a.headers), nil
	}
	return a.Invoke(ctx, event)
}

func toEvent(req events.APIGatewayProxyRequest) (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return event, nil
}

// Handler returns the function passed to the Lambda runtime
func (a *API) Handler() func(context.Context, map[string]any) (events.APIGatewayProxyResponse, error) {
	return a.Invoke
}

// Start hands control to the Lambda runtime. It does not return.
func (a *API) Start() {
	awslambda.Start(a.Handler())
}
