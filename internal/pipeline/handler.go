package pipeline

import (
	"context"
	"fmt"
	"sync"

	"lambdaguard/internal/apierrors"
)

// Outcome is the single completion signal of a business handler.
type Outcome struct {
	Value any
	Err   error
}

// Handler runs business logic for one invocation.
type Handler interface {
	Invoke(ctx context.Context, s *State) Outcome
}

// HandlerFunc returns its result directly.
type HandlerFunc func(ctx context.Context, s *State) (any, error)

func (f HandlerFunc) Invoke(ctx context.Context, s *State) (out Outcome) {
	defer recoverOutcome(&out)
	value, err := f(ctx, s)
	return Outcome{Value: value, Err: err}
}

// AsyncHandlerFunc delivers its result later on the returned channel. A
// channel closed without a value completes with a nil value.
type AsyncHandlerFunc func(ctx context.Context, s *State) <-chan Outcome

func (f AsyncHandlerFunc) Invoke(ctx context.Context, s *State) (out Outcome) {
	defer recoverOutcome(&out)
	ch := f(ctx, s)
	if ch == nil {
		return Outcome{}
	}
	select {
	case result := <-ch:
		return result
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	}
}

// CallbackHandlerFunc reports its result through done, possibly from another
// goroutine. Only the first call to done counts.
type CallbackHandlerFunc func(ctx context.Context, s *State, done func(value any, err error))

func (f CallbackHandlerFunc) Invoke(ctx context.Context, s *State) (out Outcome) {
	ch := make(chan Outcome, 1)
	var once sync.Once
	done := func(value any, err error) {
		once.Do(func() {
			ch <- Outcome{Value: value, Err: err}
		})
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				done(nil, fmt.Errorf("handler panic: %v", r))
			}
		}()
		f(ctx, s, done)
	}()

	select {
	case result := <-ch:
		return result
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	}
}

func recoverOutcome(out *Outcome) {
	if r := recover(); r != nil {
		*out = Outcome{Err: fmt.Errorf("handler panic: %v", r)}
	}
}

// Normalize adapts the supported handler shapes to Handler.
func Normalize(h any) (Handler, error) {
	switch fn := h.(type) {
	case nil:
		return nil, apierrors.Configuration("handler is nil")
	case Handler:
		return fn, nil
	case func(context.Context, *State) (any, error):
		return HandlerFunc(fn), nil
	case func(context.Context, *State) <-chan Outcome:
		return AsyncHandlerFunc(fn), nil
	case func(context.Context, *State, func(any, error)):
		return CallbackHandlerFunc(fn), nil
	}
	return nil, apierrors.Configuration("unsupported handler type %T", h)
}
