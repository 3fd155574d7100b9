// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkwell/inkwell/pkg/errutil"
)

const tracerName = "github.com/inkwell/inkwell/internal/auth"

// Flow names used for metrics and spans.
const (
	FlowSignup       = "signup"
	FlowLogin        = "login"
	FlowRequestReset = "request_reset"
	FlowConfirmReset = "confirm_reset"
	FlowAuthenticate = "authenticate"
)

// ResetNotifier delivers password-reset codes. It is the mail collaborator.
type ResetNotifier interface {
	SendResetCode(ctx context.Context, email, name, code string) error
}

// Recorder receives flow outcomes for metrics.
type Recorder interface {
	RecordAuthOutcome(flow, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOutcome(string, string) {}

// dummyPassword is hashed once per Gateway with the configured hasher. The
// resulting hash is verified when an email is unknown so login latency does
// not reveal whether the account exists.
const dummyPassword = "inkwell-unknown-identity"

// loginOutcome is the internal result of a credential check. All failures
// collapse to AUTH_INVALID_CREDENTIALS externally.
type loginOutcome int

const (
	loginOK loginOutcome = iota
	loginUnknownIdentity
	loginBadPassword
	loginInactive
)

func (o loginOutcome) String() string {
	switch o {
	case loginOK:
		return "ok"
	case loginUnknownIdentity:
		return "unknown_identity"
	case loginBadPassword:
		return "bad_password"
	case loginInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// SignupInput is the input to Signup.
type SignupInput struct {
	Name     string
	Email    string
	Password string
}

// ConfirmResetInput is the input to ConfirmReset.
type ConfirmResetInput struct {
	Email       string
	Code        string
	NewPassword string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  *PublicIdentity
}

// Gateway composes the hasher, token issuer and OTP store into the
// user-facing authentication flows. It is the only component that talks to
// the identity repository and the mail collaborator.
type Gateway struct {
	identities IdentityRepository
	otps       *OtpStore
	hasher     PasswordHasher
	tokens     *TokenIssuer
	notifier   ResetNotifier
	dummyHash  string
	logger     *slog.Logger
	metrics    Recorder
	tracer     trace.Tracer
}

// GatewayOption configures optional Gateway dependencies.
type GatewayOption func(*Gateway)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) GatewayOption {
	return func(g *Gateway) {
		if r != nil {
			g.metrics = r
		}
	}
}

// NewGateway creates a new Gateway.
func NewGateway(
	identities IdentityRepository,
	otps *OtpStore,
	hasher PasswordHasher,
	tokens *TokenIssuer,
	notifier ResetNotifier,
	opts ...GatewayOption,
) (*Gateway, error) {
	switch {
	case identities == nil:
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("identity repository is required")
	case otps == nil:
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("otp store is required")
	case hasher == nil:
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("password hasher is required")
	case tokens == nil:
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("token issuer is required")
	case notifier == nil:
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("reset notifier is required")
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").
			With("operation", "hash dummy password").
			Errorf("password hasher failed: %w", err)
	}

	g := &Gateway{
		identities: identities,
		otps:       otps,
		hasher:     hasher,
		tokens:     tokens,
		notifier:   notifier,
		dummyHash:  dummyHash,
		logger:     slog.Default(),
		metrics:    nopRecorder{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Signup registers a new identity. It does not log the user in.
func (g *Gateway) Signup(ctx context.Context, in SignupInput) (_ *PublicIdentity, err error) {
	ctx, span := g.tracer.Start(ctx, "auth.Signup")
	defer func() { g.finish(span, FlowSignup, err) }()

	if err := ValidateName(in.Name); err != nil {
		return nil, err
	}
	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	_, lookupErr := g.identities.GetByEmail(ctx, email)
	switch {
	case lookupErr == nil:
		return nil, oops.Code("AUTH_EMAIL_TAKEN").Errorf("email already registered")
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "get identity by email").
			Wrap(lookupErr)
	}

	hash, err := g.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	identity, err := NewIdentity(in.Name, email, hash)
	if err != nil {
		return nil, err
	}

	if err := g.identities.Create(ctx, identity); err != nil {
		// Lost a race with a concurrent signup for the same email.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code("AUTH_EMAIL_TAKEN").Errorf("email already registered")
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create identity").
			Wrap(err)
	}

	g.logger.InfoContext(ctx, "identity created", "identity_id", identity.ID)
	return identity.Public(), nil
}

// Login verifies credentials and issues a session token.
// Unknown emails, wrong passwords and inactive accounts are
// indistinguishable to the caller in both error and timing.
func (g *Gateway) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	ctx, span := g.tracer.Start(ctx, "auth.Login")
	defer func() { g.finish(span, FlowLogin, err) }()

	email = NormalizeEmail(email)
	identity, outcome, err := g.checkCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.outcome", outcome.String()))

	if outcome != loginOK {
		// Logged for operators only; never part of the returned error.
		g.logger.InfoContext(ctx, "login rejected", "reason", outcome.String())
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
	}

	if g.hasher.NeedsUpgrade(identity.PasswordHash) {
		g.upgradeHash(ctx, identity, password)
	}

	token, claim, err := g.tokens.Issue(identity.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			With("identity_id", identity.ID).
			Wrap(err)
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: claim.ExpiresAt,
		Identity:  identity.Public(),
	}, nil
}

// checkCredentials always runs one password verification so the unknown
// identity path costs the same as the known one.
func (g *Gateway) checkCredentials(ctx context.Context, email, password string) (*Identity, loginOutcome, error) {
	identity, lookupErr := g.identities.GetByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, loginUnknownIdentity, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get identity by email").
			Wrap(lookupErr)
	}

	exists := lookupErr == nil
	targetHash := g.dummyHash
	if exists {
		targetHash = identity.PasswordHash
	}

	valid, verifyErr := g.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		// Fail closed; a stored hash we cannot parse never authenticates.
		errutil.LogWarn(g.logger, "stored password hash is unreadable", verifyErr, "identity_id", identity.ID)
		valid = false
	}

	switch {
	case !exists:
		return nil, loginUnknownIdentity, nil
	case !valid:
		return identity, loginBadPassword, nil
	case !identity.Active:
		return identity, loginInactive, nil
	default:
		return identity, loginOK, nil
	}
}

// upgradeHash re-hashes with current parameters. Login succeeds regardless.
func (g *Gateway) upgradeHash(ctx context.Context, identity *Identity, password string) {
	newHash, err := g.hasher.Hash(password)
	if err != nil {
		errutil.LogWarn(g.logger, "best-effort hash upgrade failed", err, "operation", "hash", "identity_id", identity.ID)
		return
	}
	if err := g.identities.UpdatePassword(ctx, identity.ID, newHash); err != nil {
		errutil.LogWarn(g.logger, "best-effort hash upgrade failed", err, "operation", "update_password", "identity_id", identity.ID)
		return
	}
	identity.PasswordHash = newHash
}

// RequestReset issues a reset code for a registered email and mails it.
// Mail delivery is best effort: the code stays valid if sending fails.
func (g *Gateway) RequestReset(ctx context.Context, email string) (err error) {
	ctx, span := g.tracer.Start(ctx, "auth.RequestReset")
	defer func() { g.finish(span, FlowRequestReset, err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}

	identity, err := g.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_IDENTITY_NOT_FOUND").Errorf("no identity for email")
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get identity by email").
			Wrap(err)
	}

	code, err := g.otps.IssueChallenge(ctx, email)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "issue challenge").
			With("identity_id", identity.ID).
			Wrap(err)
	}

	if err := g.notifier.SendResetCode(ctx, identity.Email, identity.Name, code); err != nil {
		errutil.LogWarn(g.logger, "best-effort reset mail failed", err,
			"operation", "send_reset_code",
			"identity_id", identity.ID,
		)
		g.metrics.RecordAuthOutcome(FlowRequestReset, "mail_failed")
	}
	return nil
}

// ConfirmReset sets a new password when the code is valid. Wrong, expired,
// exhausted and missing codes all return RESET_CODE_INVALID.
func (g *Gateway) ConfirmReset(ctx context.Context, in ConfirmResetInput) (err error) {
	ctx, span := g.tracer.Start(ctx, "auth.ConfirmReset")
	defer func() { g.finish(span, FlowConfirmReset, err) }()

	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := ValidatePassword(in.NewPassword); err != nil {
		return err
	}

	identity, err := g.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.logger.InfoContext(ctx, "reset confirmation rejected", "reason", "unknown_identity")
			return oops.Code("RESET_CODE_INVALID").Errorf("invalid or expired code")
		}
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "get identity by email").
			Wrap(err)
	}

	result, err := g.otps.Confirm(ctx, email, in.Code)
	if err != nil {
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "confirm challenge").
			With("identity_id", identity.ID).
			Wrap(err)
	}
	span.SetAttributes(attribute.String("auth.otp_result", result.String()))
	if result != ConfirmOK {
		g.logger.InfoContext(ctx, "reset confirmation rejected",
			"reason", result.String(),
			"identity_id", identity.ID,
		)
		return oops.Code("RESET_CODE_INVALID").Errorf("invalid or expired code")
	}

	hash, err := g.hasher.Hash(in.NewPassword)
	if err != nil {
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "hash password").
			With("identity_id", identity.ID).
			Wrap(err)
	}

	if err := g.identities.UpdatePassword(ctx, identity.ID, hash); err != nil {
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "update password").
			With("identity_id", identity.ID).
			Wrap(err)
	}

	g.logger.InfoContext(ctx, "password reset", "identity_id", identity.ID)
	return nil
}

// Authenticate validates a session token and resolves its subject. The
// subject must still exist and be active.
func (g *Gateway) Authenticate(ctx context.Context, token string) (_ *PublicIdentity, err error) {
	ctx, span := g.tracer.Start(ctx, "auth.Authenticate")
	defer func() { g.finish(span, FlowAuthenticate, err) }()

	claim, err := g.tokens.Validate(token)
	if err != nil {
		g.logger.DebugContext(ctx, "session token rejected", "error", err.Error())
		return nil, err
	}

	identity, err := g.identities.GetByID(ctx, claim.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_SUBJECT_INVALID").
				With("identity_id", claim.SubjectID).
				Errorf("token subject does not exist")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get identity by id").
			Wrap(err)
	}
	if !identity.Active {
		return nil, oops.Code("SESSION_SUBJECT_INVALID").
			With("identity_id", claim.SubjectID).
			Errorf("token subject is inactive")
	}
	return identity.Public(), nil
}

// Profile returns the public identity for an id.
func (g *Gateway) Profile(ctx context.Context, id int64) (*PublicIdentity, error) {
	identity, err := g.identities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("IDENTITY_NOT_FOUND").
				With("identity_id", id).
				Errorf("identity not found")
		}
		return nil, oops.Code("PROFILE_LOOKUP_FAILED").
			With("operation", "get identity by id").
			Wrap(err)
	}
	return identity.Public(), nil
}

// finish records the flow outcome on the span and the metrics recorder.
func (g *Gateway) finish(span trace.Span, flow string, err error) {
	defer span.End()
	if err == nil {
		g.metrics.RecordAuthOutcome(flow, "success")
		return
	}
	pub := Classify(err)
	g.metrics.RecordAuthOutcome(flow, string(pub.Kind))
	span.SetAttributes(attribute.String("auth.error_kind", string(pub.Kind)))
	if pub.Kind == KindInternal {
		span.SetStatus(codes.Error, "internal error")
	}
}
