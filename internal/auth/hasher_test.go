// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkwell/inkwell/internal/auth"
	"github.com/inkwell/inkwell/pkg/errutil"
)

// fastParams keeps the suite quick while exercising the real argon2id path.
func fastParams() auth.Argon2Params {
	return auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
}

func newFastHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(fastParams())
	require.NoError(t, err)
	return h
}

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := newFastHasher(t)

	t.Run("produces PHC encoded argon2id hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"))
		assert.Len(t, strings.Split(hash, "$"), 6)
	})

	t.Run("same password produces different hashes", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := newFastHasher(t)

	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails without error", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hash made with other params still verifies", func(t *testing.T) {
		other, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
			Time: 2, Memory: 16 * 1024, Threads: 2, SaltLen: 8, KeyLen: 16,
		})
		require.NoError(t, err)
		otherHash, err := other.Hash("portable")
		require.NoError(t, err)

		ok, err := hasher.Verify("portable", otherHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	malformed := []struct {
		name     string
		hash     string
		contains string
	}{
		{"not a PHC string", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"invalid version", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"invalid parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"invalid salt encoding", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA", ""},
		{"invalid key encoding", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
		{"zero work factor", "$argon2id$v=19$m=0,t=0,p=1$c2FsdA$aGFzaA", "work factor"},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			assert.False(t, ok)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestArgon2idHasher_LegacyBcrypt(t *testing.T) {
	hasher := newFastHasher(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("verifies matching bcrypt hash", func(t *testing.T) {
		ok, err := hasher.Verify("oldpassword", string(legacy))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("bcrypt mismatch is not an error", func(t *testing.T) {
		ok, err := hasher.Verify("newpassword", string(legacy))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("truncated bcrypt hash is an error", func(t *testing.T) {
		_, err := hasher.Verify("oldpassword", "$2a$10$short")
		require.Error(t, err)
	})

	t.Run("bcrypt hash needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade(string(legacy)))
	})
}

func TestArgon2idHasher_NeedsUpgrade(t *testing.T) {
	weak := newFastHasher(t)
	strong, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
		Time: 2, Memory: 16 * 1024, Threads: 2, SaltLen: 16, KeyLen: 32,
	})
	require.NoError(t, err)

	weakHash, err := weak.Hash("password")
	require.NoError(t, err)
	strongHash, err := strong.Hash("password")
	require.NoError(t, err)

	assert.False(t, weak.NeedsUpgrade(weakHash), "own params")
	assert.False(t, weak.NeedsUpgrade(strongHash), "stronger params")
	assert.True(t, strong.NeedsUpgrade(weakHash), "weaker params")
	assert.True(t, strong.NeedsUpgrade("garbage"), "unparseable")
}

func TestNewArgon2idHasherWithParams_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.Argon2Params)
	}{
		{"zero time", func(p *auth.Argon2Params) { p.Time = 0 }},
		{"zero threads", func(p *auth.Argon2Params) { p.Threads = 0 }},
		{"memory below 8 KiB per thread", func(p *auth.Argon2Params) { p.Memory = 8; p.Threads = 4 }},
		{"short salt", func(p *auth.Argon2Params) { p.SaltLen = 4 }},
		{"short key", func(p *auth.Argon2Params) { p.KeyLen = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := auth.DefaultArgon2Params()
			tt.mutate(&p)
			_, err := auth.NewArgon2idHasherWithParams(p)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "AUTH_HASHER_CONFIG_INVALID")
		})
	}
}
