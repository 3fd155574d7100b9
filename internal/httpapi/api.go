// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package httpapi exposes the authentication flows as a JSON HTTP API.
//
// Every response uses the same envelope:
//
//	{"status": true, "message": "...", "data": {...}}
//
// Failures carry status false and a caller-safe message. Unexpected failures
// return HTTP 500 with data.request_id, the correlation id under which the
// full error was logged.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkwell/inkwell/internal/auth"
)

const tracerName = "github.com/inkwell/inkwell/internal/httpapi"

// DefaultSlowRequest is the duration above which requests are logged at WARN.
const DefaultSlowRequest = 500 * time.Millisecond

// Authenticator is the subset of *auth.Gateway the API serves.
type Authenticator interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.PublicIdentity, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, in auth.ConfirmResetInput) error
	Authenticate(ctx context.Context, token string) (*auth.PublicIdentity, error)
	Profile(ctx context.Context, id int64) (*auth.PublicIdentity, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API serves the HTTP routes.
type API struct {
	auth   Authenticator
	pinger Pinger
	logger *slog.Logger
	tracer trace.Tracer
	slow   time.Duration
}

// Option configures optional API dependencies.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithPinger enables the database check on GET /health/db.
func WithPinger(p Pinger) Option {
	return func(a *API) { a.pinger = p }
}

// WithSlowRequest sets the slow request threshold.
func WithSlowRequest(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.slow = d
		}
	}
}

// New creates an API backed by authn.
func New(authn Authenticator, opts ...Option) (*API, error) {
	if authn == nil {
		return nil, oops.Code("HTTPAPI_CONFIG_INVALID").Errorf("authenticator is required")
	}
	a := &API{
		auth:   authn,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		slow:   DefaultSlowRequest,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Handler returns the routed handler with request middleware applied.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", a.handleSignup)
	mux.HandleFunc("POST /auth/login", a.handleLogin)
	mux.HandleFunc("POST /auth/forget-password", a.handleForgetPassword)
	mux.HandleFunc("POST /auth/reset-password", a.handleResetPassword)
	mux.HandleFunc("GET /users/me", a.handleMe)
	mux.HandleFunc("GET /users/{id}", a.handleProfile)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /health/db", a.handleHealthDB)
	return a.middleware(mux)
}

type signupRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	identity, err := a.auth.Signup(r.Context(), auth.SignupInput{
		Name:     req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeOK(w, http.StatusCreated, "User created successfully", signupResponse{
		ID:    identity.ID,
		Name:  identity.Name,
		Email: identity.Email,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string               `json:"access_token"`
	TokenType   string               `json:"token_type"`
	ExpiresAt   time.Time            `json:"expires_at"`
	User        *auth.PublicIdentity `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	result, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeOK(w, http.StatusOK, "Login successful", loginResponse{
		AccessToken: result.Token,
		TokenType:   "bearer",
		ExpiresAt:   result.ExpiresAt.UTC(),
		User:        result.Identity,
	})
}

type forgetPasswordRequest struct {
	Email string `json:"email"`
}

func (a *API) handleForgetPassword(w http.ResponseWriter, r *http.Request) {
	var req forgetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.auth.RequestReset(r.Context(), req.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeOK(w, http.StatusOK, "OTP sent to your email", nil)
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	err := a.auth.ConfirmReset(r.Context(), auth.ConfirmResetInput{
		Email:       req.Email,
		Code:        req.OTP,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeOK(w, http.StatusOK, "Password reset successfully", nil)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	a.writeOK(w, http.StatusOK, "User profile", identity)
}

// handleProfile serves another identity's public profile to any
// authenticated caller.
func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authenticate(w, r); !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		a.writeError(w, r, oops.Code("AUTH_INVALID_INPUT").
			With("id", r.PathValue("id")).
			Errorf("user id must be a positive integer"))
		return
	}
	identity, err := a.auth.Profile(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeOK(w, http.StatusOK, "User profile", identity)
}

// authenticate resolves the bearer token, writing the failure response
// itself when the caller is not authenticated.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request) (*auth.PublicIdentity, bool) {
	token, ok := bearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="inkwell"`)
		a.writeJSON(w, http.StatusUnauthorized, Envelope{Message: "Authorization header missing"})
		return nil, false
	}
	identity, err := a.auth.Authenticate(r.Context(), token)
	if err != nil {
		a.writeError(w, r, err)
		return nil, false
	}
	return identity, true
}

// bearerToken extracts the credential of a "Bearer" Authorization header.
// A present header with another scheme yields an empty token, which the
// gateway rejects as missing.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeOK(w, http.StatusOK, "ok", nil)
}

func (a *API) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	if a.pinger == nil {
		a.writeOK(w, http.StatusOK, "Database healthy", map[string]string{"db": "memory"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.pinger.Ping(ctx); err != nil {
		a.writeError(w, r, oops.Code("HEALTH_DB_FAILED").Wrap(err))
		return
	}
	a.writeOK(w, http.StatusOK, "Database healthy", map[string]string{"db": "ok"})
}
