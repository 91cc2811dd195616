package pipeline

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"lambdaguard/internal/apierrors"
	"lambdaguard/internal/auth"
	"lambdaguard/internal/protect"
)

// ExecutorResolver returns the executor bound to an HTTP method, or nil.
type ExecutorResolver func(method string) *Executor

// Dependencies are the shared, read-only collaborators of the default
// stages. A nil Scanner or Authenticator leaves that stage unset.
type Dependencies struct {
	Resolve       ExecutorResolver
	Scanner       *protect.Scanner
	Authenticator *auth.Authenticator
	Logger        *logrus.Logger
}

// NewDefault creates a pipeline with the default function bound to each
// stage.
func NewDefault(deps Dependencies) *Pipeline {
	p := New()
	p.stages[StageMethod] = MethodStage(deps.Resolve)
	p.stages[StageEvent] = EventStage()
	if deps.Scanner != nil {
		p.stages[StageProtect] = ProtectStage(deps.Scanner)
	}
	if deps.Authenticator != nil {
		p.stages[StageAuthentication] = AuthenticationStage(deps.Authenticator, deps.Logger)
	}
	p.stages[StageValidation] = ValidationStage()
	p.stages[StageExecute] = ExecuteStage()
	return p
}

// MethodStage reads the HTTP method and selects its executor.
func MethodStage(resolve ExecutorResolver) StageFunc {
	return func(_ context.Context, s *State) error {
		s.Method = eventMethod(s.Event)
		if resolve != nil {
			s.Executor = resolve(s.Method)
		}
		return nil
	}
}

func eventMethod(event map[string]any) string {
	if m, ok := event["httpMethod"].(string); ok && m != "" {
		return strings.ToUpper(m)
	}
	// HTTP API payload format 2.0
	if rc, ok := event["requestContext"].(map[string]any); ok {
		if h, ok := rc["http"].(map[string]any); ok {
			if m, ok := h["method"].(string); ok {
				return strings.ToUpper(m)
			}
		}
	}
	return ""
}

// EventStage decodes the body, parses cookies and fills in absent sections.
func EventStage() StageFunc {
	return func(_ context.Context, s *State) error {
		normalizeEvent(s)
		return nil
	}
}

// ProtectStage scans the event for injection signatures.
func ProtectStage(scanner *protect.Scanner) StageFunc {
	return func(_ context.Context, s *State) error {
		_, err := scanner.ScanEvent(s.Event)
		return err
	}
}

// AuthenticationStage verifies the token and records its claims. The token
// and xsrf fields are excluded from validation.
func AuthenticationStage(a *auth.Authenticator, logger *logrus.Logger) StageFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(_ context.Context, s *State) error {
		result, err := a.Resolve(s.Event)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"request_id": s.Context.RequestID,
				"method":     s.Method,
				"error":      err.Error(),
			}).Warn("Authentication failed")
			return err
		}
		if result == nil {
			return nil
		}
		s.Claims = result.Claims
		s.Ignore(result.Config.IgnoredProperties()...)
		return nil
	}
}

// ValidationStage validates the event against the executor's schema.
func ValidationStage() StageFunc {
	return func(_ context.Context, s *State) error {
		if s.Executor == nil || s.Executor.Schema == nil {
			return nil
		}
		if err := s.Executor.Schema.Validate(s.Event, s.Ignored); err != nil {
			return err
		}
		s.Body = s.Event["body"]
		return nil
	}
}

// ExecuteStage dispatches to the executor's handler.
func ExecuteStage() StageFunc {
	return func(ctx context.Context, s *State) error {
		if s.Executor == nil || s.Executor.Handler == nil {
			return apierrors.MethodNotAllowed(s.Method)
		}
		outcome := s.Executor.Handler.Invoke(ctx, s)
		if outcome.Err != nil {
			return outcome.Err
		}
		s.Result = outcome.Value
		return nil
	}
}
