// Package auth verifies JWT bearer tokens carried by invocation events.
//
// Settings are merged per field from three sources, highest precedence
// first: the explicit Options passed to New (with a config loader's "jwt"
// section filling only the fields left empty), the event's stageVariables,
// and the process environment. When no source names an algorithm the
// authenticator is disabled and Resolve is a no-op.
package auth

import (
	"crypto/subtle"
	"errors"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"lambdaguard/internal/apierrors"
	"lambdaguard/internal/recorder"
)

// RecorderNamespace is the namespace resolved settings are recorded under.
const RecorderNamespace = "jwt"

// State of an Authenticator.
type State string

const (
	StateDisabled   State = "disabled"
	StateConfigured State = "configured"
)

// Resolved holds validated settings ready for token verification.
type Resolved struct {
	Algorithm         string
	Key               any
	TokenLocation     string
	XSRFEnabled       bool
	XSRFTokenLocation string
	XSRFClaimLocation string
}

// IgnoredProperties returns the field names schema validation must skip.
func (r *Resolved) IgnoredProperties() []string {
	if r == nil {
		return nil
	}
	names := []string{leaf(r.TokenLocation)}
	if r.XSRFEnabled {
		names = append(names, leaf(r.XSRFTokenLocation))
	}
	return names
}

// Result of a successful authentication.
type Result struct {
	Claims jwt.MapClaims
	Config *Resolved
}

// Source is the configuration loader an Authenticator can follow.
type Source interface {
	Get() map[string]any
	IsLoaded() bool
	OnUpdate(fn func())
}

type layer struct {
	base   Options   // explicit merged with loader settings
	static *Resolved // base merged with env; nil when disabled
}

// Authenticator is safe for concurrent use.
type Authenticator struct {
	explicit Options
	env      Options
	current  atomic.Pointer[layer]
	recorder recorder.Recorder
	logger   *logrus.Logger
}

// New creates an Authenticator. Settings available at construction are
// validated immediately: an unsupported algorithm or missing key material is
// returned as a configuration error.
func New(explicit Options, rec recorder.Recorder, logger *logrus.Logger) (*Authenticator, error) {
	if rec == nil {
		rec = recorder.Nop{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	a := &Authenticator{
		explicit: explicit,
		env:      EnvOptions(),
		recorder: rec,
		logger:   logger,
	}

	l, err := a.buildLayer(Options{})
	if err != nil {
		return nil, err
	}
	a.current.Store(l)
	a.record(l)

	return a, nil
}

func (a *Authenticator) buildLayer(loaded Options) (*layer, error) {
	base := a.explicit.Merge(loaded)
	l := &layer{base: base}

	merged := base.Merge(a.env)
	if merged.Algorithm == "" {
		return l, nil
	}

	resolved, err := resolve(merged)
	if err != nil {
		return nil, err
	}
	l.static = resolved
	return l, nil
}

func resolve(opts Options) (*Resolved, error) {
	key, err := verificationKey(opts)
	if err != nil {
		return nil, err
	}

	r := &Resolved{
		Algorithm:         opts.Algorithm,
		Key:               key,
		TokenLocation:     opts.TokenLocation,
		XSRFEnabled:       opts.XSRF != nil && *opts.XSRF,
		XSRFTokenLocation: opts.XSRFTokenLocation,
		XSRFClaimLocation: opts.XSRFClaimLocation,
	}
	if r.TokenLocation == "" {
		r.TokenLocation = DefaultTokenLocation
	}
	if r.XSRFTokenLocation == "" {
		r.XSRFTokenLocation = DefaultXSRFTokenLocation
	}
	if r.XSRFClaimLocation == "" {
		r.XSRFClaimLocation = DefaultXSRFClaimLocation
	}
	return r, nil
}

// State reports whether settings known outside of any event enable
// authentication. Stage variables may still enable it per invocation.
func (a *Authenticator) State() State {
	if a.current.Load().static != nil {
		return StateConfigured
	}
	return StateDisabled
}

// IgnoredProperties returns the token and xsrf field names for the settings
// known outside of any event.
func (a *Authenticator) IgnoredProperties() []string {
	return a.current.Load().static.IgnoredProperties()
}

// ResolveConfig merges stage variables from event into the current settings.
// It returns nil, nil when authentication is disabled for this event.
func (a *Authenticator) ResolveConfig(event map[string]any) (*Resolved, error) {
	l := a.current.Load()

	stage := StageOptions(event)
	if stage.IsZero() {
		return l.static, nil
	}

	merged := l.base.Merge(stage).Merge(a.env)
	if merged.Algorithm == "" {
		return nil, nil
	}
	return resolve(merged)
}

// Resolve extracts and verifies the token carried by event. It returns
// nil, nil when authentication is disabled.
func (a *Authenticator) Resolve(event map[string]any) (*Result, error) {
	cfg, err := a.ResolveConfig(event)
	if err != nil || cfg == nil {
		return nil, err
	}

	raw, ok := lookupString(event, cfg.TokenLocation)
	token := stripBearer(raw)
	if !ok || token == "" {
		return nil, apierrors.Authentication("authentication token is missing", nil)
	}

	parsed, err := jwt.ParseWithClaims(
		token,
		jwt.MapClaims{},
		func(*jwt.Token) (interface{}, error) {
			return cfg.Key, nil
		},
		jwt.WithValidMethods([]string{cfg.Algorithm}),
	)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"algorithm": cfg.Algorithm,
		}).Warn("Token validation failed")

		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apierrors.Authentication("authentication token has expired", err)
		}
		return nil, apierrors.Authentication("invalid authentication token", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, apierrors.Authentication("invalid authentication token", nil)
	}

	if cfg.XSRFEnabled {
		if err := checkXSRF(event, claims, cfg); err != nil {
			return nil, err
		}
	}

	return &Result{Claims: claims, Config: cfg}, nil
}

func checkXSRF(event map[string]any, claims jwt.MapClaims, cfg *Resolved) error {
	submitted, ok := lookupString(event, cfg.XSRFTokenLocation)
	if !ok || submitted == "" {
		return apierrors.Authentication("xsrf token is missing", nil)
	}

	expected, ok := lookupString(map[string]any(claims), cfg.XSRFClaimLocation)
	if !ok {
		return apierrors.Authentication("xsrf claim is missing from token", nil)
	}

	if subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) != 1 {
		return apierrors.Authentication("xsrf token mismatch", nil)
	}
	return nil
}

// Watch re-resolves settings whenever src reports an update. Invalid
// updates are logged and the previous settings stay in effect.
func (a *Authenticator) Watch(src Source) error {
	if err := a.Reload(src); err != nil {
		return err
	}
	src.OnUpdate(func() {
		if err := a.Reload(src); err != nil {
			a.logger.WithError(err).Error("Failed to apply updated jwt configuration")
		}
	})
	return nil
}

// Reload applies the "jwt" section of src beneath the explicit options.
func (a *Authenticator) Reload(src Source) error {
	if !src.IsLoaded() {
		return nil
	}

	var loaded Options
	if section, ok := src.Get()["jwt"].(map[string]any); ok {
		opts, err := DecodeOptions(section)
		if err != nil {
			return apierrors.Configuration("%v", err)
		}
		loaded = opts
	}

	l, err := a.buildLayer(loaded)
	if err != nil {
		return err
	}
	a.current.Store(l)
	a.record(l)
	return nil
}

func (a *Authenticator) record(l *layer) {
	snapshot := map[string]any{"state": string(StateDisabled)}
	if r := l.static; r != nil {
		snapshot = map[string]any{
			"state":      string(StateConfigured),
			"algorithm":  r.Algorithm,
			"token":      r.TokenLocation,
			"xsrf":       r.XSRFEnabled,
			"xsrf_token": r.XSRFTokenLocation,
			"xsrf_claim": r.XSRFClaimLocation,
		}
	}
	a.recorder.Record(RecorderNamespace, snapshot)
}
