// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"time"

	"github.com/samber/oops"
)

// OTP configuration defaults.
const (
	DefaultOtpWindow      = 10 * time.Minute
	DefaultOtpCodeLength  = 6
	DefaultOtpMaxAttempts = 5

	MinOtpCodeLength = 4
	MaxOtpCodeLength = 10
)

// OtpRecord is the single outstanding password-reset challenge for an email.
type OtpRecord struct {
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	CreatedAt time.Time
}

// IsExpiredAt returns true if the challenge is no longer valid at t.
func (r *OtpRecord) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// ConfirmResult is the outcome of an OTP confirmation.
type ConfirmResult int

// Confirmation outcomes.
const (
	ConfirmOK ConfirmResult = iota
	ConfirmNotFound
	ConfirmExpired
	ConfirmMismatch
	ConfirmExhausted
)

func (r ConfirmResult) String() string {
	switch r {
	case ConfirmOK:
		return "ok"
	case ConfirmNotFound:
		return "not_found"
	case ConfirmExpired:
		return "expired"
	case ConfirmMismatch:
		return "mismatch"
	case ConfirmExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// OtpRepository manages OTP persistence. Implementations must make
// ReserveAttempt an atomic check-and-increment and ConsumeIfValid an atomic
// check-and-delete.
type OtpRepository interface {
	// Upsert stores the record, replacing any existing record for the email.
	Upsert(ctx context.Context, record *OtpRecord) error

	// Get retrieves the record for an email. Returns ErrNotFound when absent.
	Get(ctx context.Context, email string) (*OtpRecord, error)

	// ReserveAttempt increments the attempt counter of a record that is
	// unexpired at now and, when maxAttempts > 0, has fewer than maxAttempts
	// attempts. It returns the record as it is after the increment, or
	// ErrNotFound when no record qualifies.
	ReserveAttempt(ctx context.Context, email string, now time.Time, maxAttempts int) (*OtpRecord, error)

	// ConsumeIfValid deletes the record if its code hash matches and it has
	// not expired at now. Returns true only for the caller that deleted it.
	ConsumeIfValid(ctx context.Context, email, codeHash string, now time.Time) (bool, error)

	// DeleteExpired removes all records expired at now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// OtpConfig controls challenge generation and confirmation.
type OtpConfig struct {
	Window      time.Duration
	CodeLength  int
	MaxAttempts int // 0 disables attempt limiting
	Now         func() time.Time
}

// DefaultOtpConfig returns the default OTP configuration.
func DefaultOtpConfig() OtpConfig {
	return OtpConfig{
		Window:      DefaultOtpWindow,
		CodeLength:  DefaultOtpCodeLength,
		MaxAttempts: DefaultOtpMaxAttempts,
	}
}

// OtpStore manages the per-email password-reset challenge lifecycle.
type OtpStore struct {
	repo OtpRepository
	cfg  OtpConfig
}

// NewOtpStore creates a new OtpStore.
func NewOtpStore(repo OtpRepository, cfg OtpConfig) (*OtpStore, error) {
	if repo == nil {
		return nil, oops.Code("OTP_CONFIG_INVALID").Errorf("otp repository is required")
	}
	if cfg.Window <= 0 {
		return nil, oops.Code("OTP_CONFIG_INVALID").
			With("window", cfg.Window.String()).
			Errorf("otp window must be positive")
	}
	if cfg.CodeLength < MinOtpCodeLength || cfg.CodeLength > MaxOtpCodeLength {
		return nil, oops.Code("OTP_CONFIG_INVALID").
			With("code_length", cfg.CodeLength).
			Errorf("otp code length must be between %d and %d", MinOtpCodeLength, MaxOtpCodeLength)
	}
	if cfg.MaxAttempts < 0 {
		return nil, oops.Code("OTP_CONFIG_INVALID").Errorf("otp max attempts cannot be negative")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OtpStore{repo: repo, cfg: cfg}, nil
}

// IssueChallenge generates a new code for the email and stores its hash,
// replacing any outstanding challenge. The plaintext code is returned for
// delivery and is never persisted.
func (s *OtpStore) IssueChallenge(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", oops.Code("OTP_EMAIL_EMPTY").Errorf("email cannot be empty")
	}

	code, err := GenerateOtpCode(s.cfg.CodeLength)
	if err != nil {
		return "", err
	}

	now := s.cfg.Now().UTC()
	record := &OtpRecord{
		Email:     email,
		CodeHash:  HashOtpCode(email, code),
		ExpiresAt: now.Add(s.cfg.Window),
		CreatedAt: now,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return "", oops.Code("OTP_ISSUE_FAILED").
			With("operation", "upsert otp").
			Wrap(err)
	}
	return code, nil
}

// Confirm checks the submitted code. On ConfirmOK the challenge has been
// consumed and cannot be used again. Every evaluation reserves one of
// MaxAttempts before the code is compared, so concurrent guesses can never
// evaluate more codes than the limit allows. An exhausted challenge stays
// unusable until it expires or is replaced.
func (s *OtpStore) Confirm(ctx context.Context, email, code string) (ConfirmResult, error) {
	email = NormalizeEmail(email)
	now := s.cfg.Now().UTC()

	record, err := s.repo.ReserveAttempt(ctx, email, now, s.cfg.MaxAttempts)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.classifyUnavailable(ctx, email, now)
		}
		return ConfirmNotFound, oops.Code("OTP_CONFIRM_FAILED").
			With("operation", "reserve attempt").
			Wrap(err)
	}

	codeHash := HashOtpCode(email, code)
	if subtle.ConstantTimeCompare([]byte(record.CodeHash), []byte(codeHash)) != 1 {
		if s.cfg.MaxAttempts > 0 && record.Attempts >= s.cfg.MaxAttempts {
			return ConfirmExhausted, nil
		}
		return ConfirmMismatch, nil
	}

	consumed, err := s.repo.ConsumeIfValid(ctx, email, codeHash, now)
	if err != nil {
		return ConfirmNotFound, oops.Code("OTP_CONFIRM_FAILED").
			With("operation", "consume otp").
			Wrap(err)
	}
	if !consumed {
		// Consumed or replaced by a concurrent request.
		return ConfirmNotFound, nil
	}
	return ConfirmOK, nil
}

// classifyUnavailable explains why no attempt could be reserved.
func (s *OtpStore) classifyUnavailable(ctx context.Context, email string, now time.Time) (ConfirmResult, error) {
	record, err := s.repo.Get(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ConfirmNotFound, nil
		}
		return ConfirmNotFound, oops.Code("OTP_CONFIRM_FAILED").
			With("operation", "get otp").
			Wrap(err)
	}
	switch {
	case record.IsExpiredAt(now):
		return ConfirmExpired, nil
	case s.cfg.MaxAttempts > 0 && record.Attempts >= s.cfg.MaxAttempts:
		return ConfirmExhausted, nil
	default:
		// Replaced between the reservation and the lookup.
		return ConfirmNotFound, nil
	}
}

// Purge removes expired challenges and returns the number removed.
func (s *OtpStore) Purge(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.cfg.Now().UTC())
	if err != nil {
		return 0, oops.Code("OTP_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

var otpDigitRange = big.NewInt(10)

// GenerateOtpCode returns a numeric code of the given length with each digit
// drawn uniformly from crypto/rand.
func GenerateOtpCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, otpDigitRange)
		if err != nil {
			return "", oops.Code("OTP_GENERATE_FAILED").
				With("operation", "crypto/rand.Int").
				Wrap(err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// HashOtpCode computes the stored form of a code. The email is mixed in so
// equal codes for different accounts hash differently.
func HashOtpCode(email, code string) string {
	h := sha256.Sum256([]byte(NormalizeEmail(email) + ":" + code))
	return hex.EncodeToString(h[:])
}
