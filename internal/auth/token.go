// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	// TokenAlgorithm is the only signing algorithm issued or accepted.
	TokenAlgorithm = "HS256"

	DefaultTokenTTL    = time.Hour
	DefaultTokenIssuer = "inkwell"

	// MinTokenSecretBytes matches the HS256 output size.
	MinTokenSecretBytes = 32
)

// TokenConfig is the immutable configuration of a TokenIssuer.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Now    func() time.Time
}

// String redacts the secret so the config can be logged safely.
func (c TokenConfig) String() string {
	return fmt.Sprintf("TokenConfig{Algorithm: %s, TTL: %s, Issuer: %q, Secret: [REDACTED]}", TokenAlgorithm, c.TTL, c.Issuer)
}

// SessionClaim is the logical content of a validated session token.
type SessionClaim struct {
	SubjectID int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer creates and validates signed session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	method jwt.SigningMethod
}

// NewTokenIssuer creates a TokenIssuer. The secret is copied so later
// mutation of the caller's slice has no effect.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinTokenSecretBytes {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("min_secret_bytes", MinTokenSecretBytes).
			Errorf("token secret must be at least %d bytes", MinTokenSecretBytes)
	}
	if cfg.TTL <= 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("ttl", cfg.TTL.String()).
			Errorf("token ttl must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultTokenIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &TokenIssuer{
		secret: secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    cfg.Now,
		method: jwt.SigningMethodHS256,
	}, nil
}

// Issue creates a signed token for the subject.
func (t *TokenIssuer) Issue(subjectID int64) (string, *SessionClaim, error) {
	if subjectID <= 0 {
		return "", nil, oops.Code("TOKEN_SUBJECT_INVALID").
			With("subject_id", subjectID).
			Errorf("subject id must be positive")
	}

	now := t.now().UTC().Truncate(time.Second)
	claim := &SessionClaim{
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: now.Add(t.ttl),
	}

	token := jwt.NewWithClaims(t.method, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(subjectID, 10),
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(claim.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(claim.ExpiresAt),
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").
			With("subject_id", subjectID).
			Wrap(err)
	}
	return signed, claim, nil
}

// Validate verifies the token's signature, algorithm, issuer and expiry and
// returns its claim. Expired tokens are distinguished from malformed or
// tampered ones by error code.
func (t *TokenIssuer) Validate(tokenString string) (*SessionClaim, error) {
	if tokenString == "" {
		return nil, oops.Code("TOKEN_MISSING").Errorf("session token is missing")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{TokenAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, mapTokenError(err)
	}

	subjectID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || subjectID <= 0 {
		return nil, oops.Code("TOKEN_SUBJECT_INVALID").Errorf("token subject is not a valid identity id")
	}

	claim := &SessionClaim{
		SubjectID: subjectID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		claim.IssuedAt = claims.IssuedAt.Time
	}
	return claim, nil
}

// mapTokenError converts jwt errors into coded errors. Signature checks run
// before claim validation, so an expired error implies a well-formed,
// correctly signed token.
func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code("TOKEN_EXPIRED").Wrap(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return oops.Code("TOKEN_SIGNATURE_INVALID").Wrap(err)
	default:
		return oops.Code("TOKEN_MALFORMED").Wrap(err)
	}
}
