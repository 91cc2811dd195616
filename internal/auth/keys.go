package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"lambdaguard/internal/apierrors"
)

type keyKind int

const (
	keySecret keyKind = iota
	keyRSA
	keyECDSA
	keyEd25519
)

var algorithms = map[string]keyKind{
	"HS256": keySecret,
	"HS384": keySecret,
	"HS512": keySecret,
	"RS256": keyRSA,
	"RS384": keyRSA,
	"RS512": keyRSA,
	"PS256": keyRSA,
	"PS384": keyRSA,
	"PS512": keyRSA,
	"ES256": keyECDSA,
	"ES384": keyECDSA,
	"ES512": keyECDSA,
	"EdDSA": keyEd25519,
}

// IsSupported reports whether alg is an accepted signing algorithm.
func IsSupported(alg string) bool {
	_, ok := algorithms[alg]
	return ok
}

// IsSymmetric reports whether alg signs with a shared secret.
func IsSymmetric(alg string) bool {
	kind, ok := algorithms[alg]
	return ok && kind == keySecret
}

// verificationKey turns the configured key material into the value the
// signing method expects.
func verificationKey(opts Options) (any, error) {
	kind, ok := algorithms[opts.Algorithm]
	if !ok {
		return nil, apierrors.Configuration("jwt algorithm not supported: %s", opts.Algorithm)
	}

	if kind == keySecret {
		if opts.Secret == "" {
			return nil, apierrors.Configuration("missing secret for jwt algorithm %s", opts.Algorithm)
		}
		return []byte(opts.Secret), nil
	}

	if strings.TrimSpace(opts.PublicKey) == "" {
		return nil, apierrors.Configuration("missing public key for jwt algorithm %s", opts.Algorithm)
	}

	pem := []byte(normalizePEM(opts.PublicKey))
	var (
		key any
		err error
	)
	switch kind {
	case keyRSA:
		key, err = jwt.ParseRSAPublicKeyFromPEM(pem)
	case keyECDSA:
		key, err = jwt.ParseECPublicKeyFromPEM(pem)
	case keyEd25519:
		key, err = jwt.ParseEdPublicKeyFromPEM(pem)
	}
	if err != nil {
		return nil, apierrors.Configuration("invalid public key for jwt algorithm %s: %v", opts.Algorithm, err)
	}
	return key, nil
}

// normalizePEM restores newlines in keys that were stored escaped, which is
// how multi-line values usually arrive through environment and stage
// variables.
func normalizePEM(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), `\n`, "\n")
}
