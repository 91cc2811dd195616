package pipeline

import (
	"context"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"lambdaguard/internal/schema"
)

// InvocationContext describes the running function. Stages read it but
// never change it.
type InvocationContext struct {
	FunctionName       string
	FunctionVersion    string
	RequestID          string
	InvokedFunctionArn string
}

// NewInvocationContext reads the Lambda context from ctx. Outside Lambda the
// request id falls back to requestContext.requestId of the event, then to a
// generated UUID.
func NewInvocationContext(ctx context.Context, event map[string]any) *InvocationContext {
	ictx := &InvocationContext{
		FunctionName:    lambdacontext.FunctionName,
		FunctionVersion: lambdacontext.FunctionVersion,
	}

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ictx.RequestID = lc.AwsRequestID
		ictx.InvokedFunctionArn = lc.InvokedFunctionArn
	}
	if ictx.RequestID == "" {
		if rc, ok := event["requestContext"].(map[string]any); ok {
			if id, ok := rc["requestId"].(string); ok {
				ictx.RequestID = id
			}
		}
	}
	if ictx.RequestID == "" {
		ictx.RequestID = uuid.New().String()
	}
	return ictx
}

// Executor is the handler and schema bound to one HTTP method.
type Executor struct {
	Handler Handler
	Schema  *schema.Declaration
}

// State is threaded through every stage of one invocation. It is never
// shared between invocations.
type State struct {
	Event    map[string]any
	Context  *InvocationContext
	Method   string
	Cookies  map[string]string
	RawBody  any
	Body     any
	Ignored  schema.IgnoreSet
	Executor *Executor
	Claims   map[string]any
	Result   any
}

// NewState creates the state for one invocation. A nil event is treated as
// empty.
func NewState(event map[string]any, ictx *InvocationContext) *State {
	if event == nil {
		event = map[string]any{}
	}
	if ictx == nil {
		ictx = &InvocationContext{}
	}
	return &State{
		Event:   event,
		Context: ictx,
		Cookies: map[string]string{},
		Ignored: schema.NewIgnoreSet(),
	}
}

// Ignore excludes names from schema validation.
func (s *State) Ignore(names ...string) {
	for _, name := range names {
		s.Ignored.Add(name)
	}
}

// IsIgnored reports whether name is excluded from schema validation.
func (s *State) IsIgnored(name string) bool {
	return s.Ignored.Has(name)
}
