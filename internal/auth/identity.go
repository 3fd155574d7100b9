// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Input validation constraints.
const (
	MaxNameLength     = 255
	MaxEmailLength    = 255
	MinPasswordLength = 6
	// MaxPasswordLength keeps passwords within bcrypt's 72 byte input limit so
	// legacy and current hashes accept the same inputs.
	MaxPasswordLength = 72
)

// Identity represents a registered user account for authentication purposes.
type Identity struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicIdentity is the subset of an Identity that may leave the core.
type PublicIdentity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewIdentity creates a validated, active Identity. The ID is assigned by the
// repository on Create.
func NewIdentity(name, email, passwordHash string) (*Identity, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	normalized := NormalizeEmail(email)
	if err := ValidateEmail(normalized); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &Identity{
		Name:         strings.TrimSpace(name),
		Email:        normalized,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Public returns the externally visible fields of the identity.
func (i *Identity) Public() *PublicIdentity {
	return &PublicIdentity{
		ID:        i.ID,
		Name:      i.Name,
		Email:     i.Email,
		Active:    i.Active,
		CreatedAt: i.CreatedAt,
	}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// All lookups and uniqueness checks use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateName validates a display name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return oops.Code("AUTH_INVALID_NAME").Errorf("name cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return oops.Code("AUTH_INVALID_NAME").
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateEmail validates an already normalized email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email is not a valid address")
	}
	return nil
}

// ValidatePassword enforces plaintext length bounds.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// IdentityRepository manages identity persistence.
type IdentityRepository interface {
	// Create stores a new identity and assigns its ID.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, identity *Identity) error

	// GetByEmail retrieves an identity by normalized email.
	// Returns ErrNotFound if no identity has the given email.
	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// GetByID retrieves an identity by ID.
	GetByID(ctx context.Context, id int64) (*Identity, error)

	// UpdatePassword replaces the password hash for an identity.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}
