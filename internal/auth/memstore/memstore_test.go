// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/inkwell/internal/auth"
	"github.com/inkwell/inkwell/internal/auth/memstore"
)

func TestIdentityRepository(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New().Identities()

	identity, err := auth.NewIdentity("Ada", "ada@example.com", "hash")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, identity))
	assert.Equal(t, int64(1), identity.ID)

	t.Run("duplicate email is rejected case-insensitively", func(t *testing.T) {
		dup := &auth.Identity{Name: "X", Email: "ADA@example.com", PasswordHash: "h"}
		require.ErrorIs(t, repo.Create(ctx, dup), auth.ErrDuplicateEmail)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "Ada@Example.com")
		require.NoError(t, err)
		got.Name = "mutated"

		again, err := repo.GetByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada", again.Name)
	})

	t.Run("update password", func(t *testing.T) {
		require.NoError(t, repo.UpdatePassword(ctx, identity.ID, "newhash"))
		got, err := repo.GetByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "newhash", got.PasswordHash)

		require.ErrorIs(t, repo.UpdatePassword(ctx, 99, "x"), auth.ErrNotFound)
	})

	t.Run("missing identity", func(t *testing.T) {
		_, err := repo.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByID(ctx, 99)
		require.ErrorIs(t, err, auth.ErrNotFound)
		require.ErrorIs(t, repo.SetActive(99, false), auth.ErrNotFound)
	})
}

func TestOtpRepository(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New().Otps()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &auth.OtpRecord{
		Email: "Ada@Example.com", CodeHash: "h", ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}))

	reserved, err := repo.ReserveAttempt(ctx, "ada@example.com", now, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, reserved.Attempts)
	reserved.Attempts = 99
	stored, err := repo.Get(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts, "reservation returns a copy")

	_, err = repo.ReserveAttempt(ctx, "ada@example.com", now, 2)
	require.NoError(t, err)
	_, err = repo.ReserveAttempt(ctx, "ada@example.com", now, 2)
	require.ErrorIs(t, err, auth.ErrNotFound, "limit reached")
	_, err = repo.ReserveAttempt(ctx, "ada@example.com", now.Add(time.Minute), 0)
	require.ErrorIs(t, err, auth.ErrNotFound, "expired at boundary")
	_, err = repo.ReserveAttempt(ctx, "ada@example.com", now, 0)
	require.NoError(t, err, "zero disables the limit")

	ok, err := repo.ConsumeIfValid(ctx, "ada@example.com", "wrong", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ConsumeIfValid(ctx, "ada@example.com", "h", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "expired at boundary")

	ok, err = repo.ConsumeIfValid(ctx, "ada@example.com", "h", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ConsumeIfValid(ctx, "ada@example.com", "h", now)
	require.NoError(t, err)
	assert.False(t, ok, "already consumed")

	_, err = repo.ReserveAttempt(ctx, "ada@example.com", now, 0)
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestOtpRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := memstore.New().Otps()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{-time.Minute, 0, time.Minute} {
		require.NoError(t, repo.Upsert(ctx, &auth.OtpRecord{
			Email:     string(rune('a'+i)) + "@example.com",
			CodeHash:  "h",
			ExpiresAt: now.Add(offset),
		}))
	}

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.Get(ctx, "c@example.com")
	require.NoError(t, err)
}
