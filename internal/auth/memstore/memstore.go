// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package memstore provides in-memory implementations of the auth
// repositories. All operations on a Store are serialized by one mutex, which
// makes OTP consumption an atomic check-and-delete.
package memstore

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/inkwell/inkwell/internal/auth"
)

// Store holds identities and OTP records in memory.
type Store struct {
	mu         sync.Mutex
	nextID     int64
	identities map[int64]*auth.Identity
	byEmail    map[string]int64
	otps       map[string]*auth.OtpRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		identities: make(map[int64]*auth.Identity),
		byEmail:    make(map[string]int64),
		otps:       make(map[string]*auth.OtpRecord),
	}
}

// Identities returns the store as an auth.IdentityRepository.
func (s *Store) Identities() *IdentityRepository {
	return &IdentityRepository{s: s}
}

// Otps returns the store as an auth.OtpRepository.
func (s *Store) Otps() *OtpRepository {
	return &OtpRepository{s: s}
}

// IdentityRepository implements auth.IdentityRepository in memory.
type IdentityRepository struct {
	s *Store
}

// Create stores a new identity and assigns its ID.
func (r *IdentityRepository) Create(_ context.Context, identity *auth.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := auth.NormalizeEmail(identity.Email)
	if _, taken := r.s.byEmail[email]; taken {
		return oops.Code("IDENTITY_DUPLICATE_EMAIL").Wrap(auth.ErrDuplicateEmail)
	}

	r.s.nextID++
	identity.ID = r.s.nextID
	identity.Email = email

	stored := *identity
	r.s.identities[stored.ID] = &stored
	r.s.byEmail[email] = stored.ID
	return nil
}

// GetByEmail retrieves an identity by normalized email.
func (r *IdentityRepository) GetByEmail(_ context.Context, email string) (*auth.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	found := *r.s.identities[id]
	return &found, nil
}

// GetByID retrieves an identity by ID.
func (r *IdentityRepository) GetByID(_ context.Context, id int64) (*auth.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	identity, ok := r.s.identities[id]
	if !ok {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	found := *identity
	return &found, nil
}

// UpdatePassword replaces the password hash for an identity.
func (r *IdentityRepository) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	identity, ok := r.s.identities[id]
	if !ok {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	identity.PasswordHash = passwordHash
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

// SetActive toggles the active flag. Account deactivation is owned by the
// profile service; this exists for tests and local tooling.
func (r *IdentityRepository) SetActive(id int64, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	identity, ok := r.s.identities[id]
	if !ok {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	identity.Active = active
	return nil
}

// OtpRepository implements auth.OtpRepository in memory.
type OtpRepository struct {
	s *Store
}

// Upsert stores the record, replacing any existing record for the email.
func (r *OtpRepository) Upsert(_ context.Context, record *auth.OtpRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := *record
	stored.Email = auth.NormalizeEmail(record.Email)
	r.s.otps[stored.Email] = &stored
	return nil
}

// Get retrieves the record for an email.
func (r *OtpRepository) Get(_ context.Context, email string) (*auth.OtpRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	record, ok := r.s.otps[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("OTP_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	found := *record
	return &found, nil
}

// ConsumeIfValid deletes the record if the hash matches and it is unexpired.
func (r *OtpRepository) ConsumeIfValid(_ context.Context, email, codeHash string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := auth.NormalizeEmail(email)
	record, ok := r.s.otps[key]
	if !ok || record.IsExpiredAt(now) {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(record.CodeHash), []byte(codeHash)) != 1 {
		return false, nil
	}
	delete(r.s.otps, key)
	return true, nil
}

// ReserveAttempt increments the attempt counter of a live record that is
// under the limit.
func (r *OtpRepository) ReserveAttempt(_ context.Context, email string, now time.Time, maxAttempts int) (*auth.OtpRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	record, ok := r.s.otps[auth.NormalizeEmail(email)]
	if !ok || record.IsExpiredAt(now) || (maxAttempts > 0 && record.Attempts >= maxAttempts) {
		return nil, oops.Code("OTP_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	record.Attempts++
	reserved := *record
	return &reserved, nil
}

// DeleteExpired removes all records expired at now.
func (r *OtpRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for email, record := range r.s.otps {
		if record.IsExpiredAt(now) {
			delete(r.s.otps, email)
			n++
		}
	}
	return n, nil
}

// Compile-time interface checks.
var (
	_ auth.IdentityRepository = (*IdentityRepository)(nil)
	_ auth.OtpRepository      = (*OtpRepository)(nil)
)
