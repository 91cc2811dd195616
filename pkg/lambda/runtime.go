package lambda

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"lambdaguard/internal/config"
	"lambdaguard/internal/response"
)

// BuildFunc creates the API for a configuration
type BuildFunc func(cfg *config.Config) (*API, error)

// Runtime builds the API once per execution environment and reuses it
// across warm invocations
type Runtime struct {
	api         *API
	lastUsed    time.Time
	mu          sync.RWMutex
	initialized bool
	initOnce    sync.Once
	initErr     error
	config      *config.Config
}

var (
	globalRuntime *Runtime
	runtimeOnce   sync.Once
)

// GetRuntime returns the global runtime instance
func GetRuntime() *Runtime {
	runtimeOnce.Do(func() {
		globalRuntime = &Runtime{}
	})
	return globalRuntime
}

// Initialize builds the API. Only the first call has any effect; later
// calls return its error.
func (r *Runtime) Initialize(cfg *config.Config, build BuildFunc) error {
	r.initOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.config = cfg
		api, err := build(cfg)
		if err != nil {
			r.initErr = err
			return
		}

		r.api = api
		r.lastUsed = time.Now()
		r.initialized = true
	})

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initErr
}

// GetAPI returns the API, loading the optimized configuration and building
// with build on first use
func (r *Runtime) GetAPI(build BuildFunc) (*API, error) {
	r.mu.RLock()
	if r.initialized && r.api != nil {
		api := r.api
		r.mu.RUnlock()
		r.UpdateLastUsed()
		return api, nil
	}
	r.mu.RUnlock()

	cfg, err := config.GetOptimizedConfig()
	if err != nil {
		return nil, err
	}
	if err := r.Initialize(cfg, build); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.api, nil
}

// Invoke runs event through the API. A failed build is rendered as an
// error response.
func (r *Runtime) Invoke(ctx context.Context, event map[string]any, build BuildFunc) (events.APIGatewayProxyResponse, error) {
	api, err := r.GetAPI(build)
	if err != nil {
		return response.ProcessError(err, nil), nil
	}
	return api.Invoke(ctx, event)
}

// IsHealthy reports whether the API is built and was used recently
func (r *Runtime) IsHealthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized || r.api == nil {
		return false
	}

	// Environments idle for more than 5 minutes are usually recycled
	return time.Since(r.lastUsed) < 5*time.Minute
}

// Config returns the configuration the API was built with
func (r *Runtime) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// UpdateLastUsed updates the last used timestamp
func (r *Runtime) UpdateLastUsed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = time.Now()
}
