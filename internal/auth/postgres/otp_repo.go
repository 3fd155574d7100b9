// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/inkwell/inkwell/internal/auth"
)

// OtpRepository implements auth.OtpRepository using PostgreSQL.
type OtpRepository struct {
	pool Pool
}

// NewOtpRepository creates a new OtpRepository.
func NewOtpRepository(pool Pool) *OtpRepository {
	return &OtpRepository{pool: pool}
}

// Upsert stores the record, replacing any existing record for the email and
// resetting its attempt counter.
func (r *OtpRepository) Upsert(ctx context.Context, record *auth.OtpRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO otp_records (email, code_hash, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (email) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			attempts = 0,
			created_at = EXCLUDED.created_at
	`, auth.NormalizeEmail(record.Email), record.CodeHash, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return oops.Code("OTP_UPSERT_FAILED").
			With("operation", "upsert otp record").
			Wrap(err)
	}
	return nil
}

// Get retrieves the record for an email.
func (r *OtpRepository) Get(ctx context.Context, email string) (*auth.OtpRecord, error) {
	var rec auth.OtpRecord
	err := r.pool.QueryRow(ctx, `
		SELECT email, code_hash, expires_at, attempts, created_at
		FROM otp_records
		WHERE email = $1
	`, auth.NormalizeEmail(email)).Scan(&rec.Email, &rec.CodeHash, &rec.ExpiresAt, &rec.Attempts, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OTP_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("OTP_GET_FAILED").
			With("operation", "get otp record").
			Wrap(err)
	}
	return &rec, nil
}

// ConsumeIfValid deletes the record in a single statement, so at most one
// concurrent caller observes a deleted row.
func (r *OtpRepository) ConsumeIfValid(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM otp_records
		WHERE email = $1 AND code_hash = $2 AND expires_at > $3
	`, auth.NormalizeEmail(email), codeHash, now)
	if err != nil {
		return false, oops.Code("OTP_CONSUME_FAILED").
			With("operation", "consume otp record").
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// ReserveAttempt increments the attempt counter in a single conditional
// UPDATE, so concurrent callers can never reserve more than maxAttempts.
func (r *OtpRepository) ReserveAttempt(ctx context.Context, email string, now time.Time, maxAttempts int) (*auth.OtpRecord, error) {
	var rec auth.OtpRecord
	err := r.pool.QueryRow(ctx, `
		UPDATE otp_records SET attempts = attempts + 1
		WHERE email = $1 AND expires_at > $2 AND ($3::int = 0 OR attempts < $3::int)
		RETURNING email, code_hash, expires_at, attempts, created_at
	`, auth.NormalizeEmail(email), now, maxAttempts).
		Scan(&rec.Email, &rec.CodeHash, &rec.ExpiresAt, &rec.Attempts, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OTP_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("OTP_ATTEMPT_FAILED").
			With("operation", "reserve otp attempt").
			Wrap(err)
	}
	return &rec, nil
}

// DeleteExpired removes all records expired at now.
func (r *OtpRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM otp_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("OTP_PURGE_FAILED").
			With("operation", "delete expired otp records").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.OtpRepository = (*OtpRepository)(nil)
