// Package pipeline runs one invocation through the fixed sequence of
// processing stages.
package pipeline

import (
	"context"

	"lambdaguard/internal/apierrors"
)

// Stage names, in execution order.
const (
	StageMethod         = "method"
	StageEvent          = "event"
	StageProtect        = "protect"
	StageAuthentication = "authentication"
	StageValidation     = "validation"
	StageExecute        = "execute"
)

var stageOrder = []string{
	StageMethod,
	StageEvent,
	StageProtect,
	StageAuthentication,
	StageValidation,
	StageExecute,
}

// StageNames returns the stage names in execution order.
func StageNames() []string {
	return append([]string(nil), stageOrder...)
}

// IsStage reports whether name is a known stage.
func IsStage(name string) bool {
	for _, s := range stageOrder {
		if s == name {
			return true
		}
	}
	return false
}

// StageFunc is one processing step over the invocation state.
type StageFunc func(ctx context.Context, s *State) error

// Pipeline holds at most one function per stage. Stages can be replaced or
// disabled but their order never changes. A pipeline must not be modified
// once invocations run through it.
type Pipeline struct {
	stages map[string]StageFunc
}

// New creates a pipeline with every stage unset.
func New() *Pipeline {
	return &Pipeline{stages: make(map[string]StageFunc, len(stageOrder))}
}

// Set binds fn to the named stage, replacing what was there.
func (p *Pipeline) Set(name string, fn StageFunc) error {
	if !IsStage(name) {
		return apierrors.Configuration("unknown pipeline stage: %s", name)
	}
	if fn == nil {
		delete(p.stages, name)
		return nil
	}
	p.stages[name] = fn
	return nil
}

// Disable unsets the named stage.
func (p *Pipeline) Disable(name string) error {
	return p.Set(name, nil)
}

// Stage returns the function bound to name, or nil.
func (p *Pipeline) Stage(name string) StageFunc {
	return p.stages[name]
}

// Run executes the bound stages in order and returns the first error
// unchanged. Unset stages are skipped.
func (p *Pipeline) Run(ctx context.Context, s *State) error {
	for _, name := range stageOrder {
		fn, ok := p.stages[name]
		if !ok {
			continue
		}
		if err := fn(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
