package lambda

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"lambdaguard/internal/auth"
	"lambdaguard/internal/config"
	"lambdaguard/internal/pipeline"
	"lambdaguard/internal/protect"
	"lambdaguard/internal/recorder"
)

// ErrorTransform rewrites an error before it is rendered. Returning nil
// keeps the original error.
type ErrorTransform func(ctx context.Context, s *pipeline.State, err error) error

// FinallyFunc observes every response before it is returned.
type FinallyFunc func(ctx context.Context, s *pipeline.State, resp events.APIGatewayProxyResponse)

// CORSOptions describes the CORS headers added to every response
type CORSOptions struct {
	AllowOrigin      string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
}

func (c CORSOptions) headers() map[string]any {
	origin := c.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	h := map[string]any{"Access-Control-Allow-Origin": origin}
	if len(c.AllowMethods) > 0 {
		h["Access-Control-Allow-Methods"] = strings.Join(c.AllowMethods, ", ")
	}
	if len(c.AllowHeaders) > 0 {
		h["Access-Control-Allow-Headers"] = strings.Join(c.AllowHeaders, ", ")
	}
	if len(c.ExposeHeaders) > 0 {
		h["Access-Control-Expose-Headers"] = strings.Join(c.ExposeHeaders, ", ")
	}
	if c.AllowCredentials {
		h["Access-Control-Allow-Credentials"] = "true"
	}
	return h
}

type settings struct {
	protection     *protect.Options
	jwt            auth.Options
	headers        map[string]any
	errorTransform ErrorTransform
	finally        FinallyFunc
	stages         map[string]pipeline.StageFunc
	disabled       []string
	logger         *logrus.Logger
	loader         config.Source
	recorder       recorder.Recorder
}

// Option configures an API
type Option func(*settings)

// WithProtection configures the injection scanner. Without it the scanner
// runs in report mode, or as set by the loader's "protect" section.
func WithProtection(opts protect.Options) Option {
	return func(s *settings) {
		s.protection = &opts
	}
}

// WithJWT sets explicit authentication options. They take precedence over
// the loader's "jwt" section, stage variables and the environment.
func WithJWT(opts auth.Options) Option {
	return func(s *settings) {
		s.jwt = opts
	}
}

// WithHeaders adds headers to every response, beneath handler headers.
func WithHeaders(headers map[string]any) Option {
	return func(s *settings) {
		for k, v := range headers {
			s.headers[k] = v
		}
	}
}

// WithCORS adds CORS headers to every response.
func WithCORS(opts CORSOptions) Option {
	return WithHeaders(opts.headers())
}

// WithErrorTransform sets a function run once per error before rendering.
func WithErrorTransform(fn ErrorTransform) Option {
	return func(s *settings) {
		s.errorTransform = fn
	}
}

// WithFinally sets a function run after every invocation.
func WithFinally(fn FinallyFunc) Option {
	return func(s *settings) {
		s.finally = fn
	}
}

// WithStage replaces the named pipeline stage.
func WithStage(name string, fn pipeline.StageFunc) Option {
	return func(s *settings) {
		s.stages[name] = fn
	}
}

// WithoutStage disables the named pipeline stage.
func WithoutStage(name string) Option {
	return func(s *settings) {
		s.disabled = append(s.disabled, name)
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithConfigLoader follows a configuration loader. Its "jwt" section is
// re-applied on every update.
func WithConfigLoader(loader config.Source) Option {
	return func(s *settings) {
		s.loader = loader
	}
}

func WithRecorder(rec recorder.Recorder) Option {
	return func(s *settings) {
		s.recorder = rec
	}
}
