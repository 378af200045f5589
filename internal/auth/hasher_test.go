// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package auth_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxg4n/m5/internal/apperr"
	"github.com/fxg4n/m5/internal/auth"
	"github.com/fxg4n/m5/pkg/errutil"
)

// cheapParams keeps argon2 fast in tests.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces self-describing record", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
		assert.Len(t, strings.Split(hash, "$"), 6)
	})

	t.Run("same password produces different records (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)

		for _, h := range []string{hash1, hash2} {
			ok, err := hasher.Verify("samepassword", h)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
	})

	t.Run("salt source failure is internal", func(t *testing.T) {
		h := auth.NewArgon2idHasher(auth.WithParams(cheapParams), auth.WithSaltSource(failingReader{}))
		_, err := h.Hash("password")
		errutil.AssertErrorKind(t, err, apperr.KindInternal)
		errutil.AssertErrorCode(t, err, "AUTH_SALT_FAILED")
	})

	t.Run("deterministic salt source", func(t *testing.T) {
		salt := bytes.Repeat([]byte{0x01}, 16)
		h := auth.NewArgon2idHasher(auth.WithParams(cheapParams), auth.WithSaltSource(bytes.NewReader(salt)))
		hash, err := h.Hash("password")
		require.NoError(t, err)
		assert.Contains(t, hash, "$AQEBAQEBAQEBAQEBAQEBAQ$")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher(auth.WithParams(cheapParams))

	passwords := []string{"correctpassword", "Str0ng!pass", "ünïcødé-Pässw0rd", strings.Repeat("x", 72)}
	for _, p := range passwords {
		t.Run("round trip "+p[:4], func(t *testing.T) {
			hash, err := hasher.Hash(p)
			require.NoError(t, err)

			ok, err := hasher.Verify(p, hash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = hasher.Verify(p+"x", hash)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	t.Run("verifies with embedded parameters", func(t *testing.T) {
		other := auth.NewArgon2idHasher(auth.WithParams(auth.Argon2Params{Time: 2, Memory: 128, Threads: 2, SaltLen: 8, KeyLen: 16}))
		hash, err := other.Hash("password")
		require.NoError(t, err)

		ok, err := hasher.Verify("password", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	invalid := []struct {
		name   string
		record string
	}{
		{"not a record", "not-a-valid-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"invalid version format", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"unsupported version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"invalid parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA"},
		{"invalid hash base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!"},
		{"empty digest", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$"},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA"},
		{"zero threads", "$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$aGFzaA"},
		{"zero iterations", "$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$aGFzaA"},
		{"excessive iterations", "$argon2id$v=19$m=65536,t=4294967295,p=4$c2FsdA$aGFzaA"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=4$c2FsdA$aGFzaA"},
		{"excessive memory", "$argon2id$v=19$m=4294967295,t=1,p=4$c2FsdA$aGFzaA"},
		{"memory just over cap", "$argon2id$v=19$m=1048577,t=1,p=4$c2FsdA$aGFzaA"},
	}
	for _, tt := range invalid {
		t.Run(tt.name+" is internal error", func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.record)
			assert.False(t, ok)
			errutil.AssertErrorKind(t, err, apperr.KindInternal)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	hasher := auth.NewArgon2idHasher(auth.WithParams(cheapParams))

	t.Run("bcrypt record needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"))
	})

	t.Run("current parameters do not need upgrade", func(t *testing.T) {
		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})

	t.Run("older parameters need upgrade", func(t *testing.T) {
		old := auth.NewArgon2idHasher(auth.WithParams(auth.Argon2Params{Time: 1, Memory: 32, Threads: 1, SaltLen: 16, KeyLen: 32}))
		hash, err := old.Hash("password")
		require.NoError(t, err)
		assert.True(t, hasher.NeedsUpgrade(hash))
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }
