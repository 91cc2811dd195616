package auth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Names of the environment and stage variables that configure
// authentication. Stage variables use the same names as the environment.
const (
	VarAlgorithm         = "JWT_ALGORITHM"
	VarSecret            = "JWT_SECRET"
	VarPublicKey         = "JWT_PUBLIC_KEY"
	VarTokenLocation     = "JWT_TOKEN_LOCATION"
	VarXSRF              = "JWT_XSRF"
	VarXSRFTokenLocation = "JWT_XSRF_TOKEN_LOCATION"
	VarXSRFClaimLocation = "JWT_XSRF_CLAIM_LOCATION"
)

// Default locations
const (
	DefaultTokenLocation     = "headers.Authorization"
	DefaultXSRFTokenLocation = "headers.xsrf-token"
	DefaultXSRFClaimLocation = "nonce"
)

// Options is one source of authentication settings. Empty fields defer to
// lower-precedence sources.
type Options struct {
	Algorithm         string `mapstructure:"algorithm"`
	Secret            string `mapstructure:"secret"`
	PublicKey         string `mapstructure:"public_key"`
	TokenLocation     string `mapstructure:"token"`
	XSRF              *bool  `mapstructure:"xsrf"`
	XSRFTokenLocation string `mapstructure:"xsrf_token"`
	XSRFClaimLocation string `mapstructure:"xsrf_claim"`
}

// DecodeOptions decodes options from a configuration map, such as the "jwt"
// section returned by a config loader. String values like "true" are
// accepted for the xsrf flag.
func DecodeOptions(settings map[string]any) (Options, error) {
	var opts Options
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return Options{}, err
	}
	if err := decoder.Decode(settings); err != nil {
		return Options{}, fmt.Errorf("failed to decode jwt options: %w", err)
	}
	return opts, nil
}

// Merge returns o with every empty field filled from lower.
func (o Options) Merge(lower Options) Options {
	if o.Algorithm == "" {
		o.Algorithm = lower.Algorithm
	}
	if o.Secret == "" {
		o.Secret = lower.Secret
	}
	if o.PublicKey == "" {
		o.PublicKey = lower.PublicKey
	}
	if o.TokenLocation == "" {
		o.TokenLocation = lower.TokenLocation
	}
	if o.XSRF == nil {
		o.XSRF = lower.XSRF
	}
	if o.XSRFTokenLocation == "" {
		o.XSRFTokenLocation = lower.XSRFTokenLocation
	}
	if o.XSRFClaimLocation == "" {
		o.XSRFClaimLocation = lower.XSRFClaimLocation
	}
	return o
}

// IsZero reports whether no field is set.
func (o Options) IsZero() bool {
	return o == Options{}
}

// fromVariables reads options through lookup, keyed by the Var* names.
func fromVariables(lookup func(name string) string) Options {
	opts := Options{
		Algorithm:         strings.TrimSpace(lookup(VarAlgorithm)),
		Secret:            lookup(VarSecret),
		PublicKey:         lookup(VarPublicKey),
		TokenLocation:     strings.TrimSpace(lookup(VarTokenLocation)),
		XSRFTokenLocation: strings.TrimSpace(lookup(VarXSRFTokenLocation)),
		XSRFClaimLocation: strings.TrimSpace(lookup(VarXSRFClaimLocation)),
	}
	if raw := strings.TrimSpace(lookup(VarXSRF)); raw != "" {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			opts.XSRF = &enabled
		}
	}
	return opts
}

// EnvOptions reads options from the process environment.
func EnvOptions() Options {
	v := viper.New()
	v.AutomaticEnv()
	return fromVariables(v.GetString)
}

// StageOptions reads options from the stageVariables carried by an event.
func StageOptions(event map[string]any) Options {
	vars, ok := event["stageVariables"]
	if !ok || vars == nil {
		return Options{}
	}

	return fromVariables(func(name string) string {
		switch m := vars.(type) {
		case map[string]any:
			if s, ok := m[name].(string); ok {
				return s
			}
		case map[string]string:
			return m[name]
		}
		return ""
	})
}
