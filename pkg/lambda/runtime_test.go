package lambda

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lambdaguard/internal/apierrors"
	"lambdaguard/internal/config"
	"lambdaguard/internal/pipeline"
)

func TestRuntimeBuildsOnce(t *testing.T) {
	clearJWTEnv(t)

	builds := 0
	build := func(cfg *config.Config) (*API, error) {
		builds++
		api, err := NewAPI()
		if err != nil {
			return nil, err
		}
		return api, api.GET(func(context.Context, *pipeline.State) (any, error) {
			return cfg.Environment, nil
		})
	}

	r := &Runtime{}
	assert.False(t, r.IsHealthy())

	cfg := &config.Config{Environment: "test"}
	require.NoError(t, r.Initialize(cfg, build))
	require.NoError(t, r.Initialize(&config.Config{Environment: "other"}, build))
	assert.Equal(t, 1, builds)
	assert.Same(t, cfg, r.Config())
	assert.True(t, r.IsHealthy())

	resp, err := r.Invoke(context.Background(), map[string]any{"httpMethod": "GET"}, build)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test", resp.Body)
	assert.Equal(t, 1, builds)
}

func TestRuntimeBuildFailure(t *testing.T) {
	r := &Runtime{}
	build := func(*config.Config) (*API, error) {
		return nil, apierrors.Configuration("unsupported algorithm: XX999")
	}

	err := r.Initialize(&config.Config{}, build)
	require.Error(t, err)
	assert.True(t, apierrors.IsConfiguration(err))

	resp, err := r.Invoke(context.Background(), map[string]any{"httpMethod": "GET"}, build)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"type":"ConfigurationError","message":"unsupported algorithm: XX999"}`, resp.Body)
	assert.False(t, r.IsHealthy())
}

func TestGetRuntimeIsShared(t *testing.T) {
	assert.Same(t, GetRuntime(), GetRuntime())
}
