// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"

	"github.com/fxg4n/m5/internal/apperr"
)

// Argon2Params are the argon2id cost parameters embedded in every record.
type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	SaltLen int
	KeyLen  uint32
}

// DefaultArgon2Params follows the OWASP baseline for argon2id.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Upper bounds on stored argon2id costs. Records above them are rejected
// rather than computed.
const (
	MaxArgon2Memory = 1 << 20 // KiB, 1 GiB
	MaxArgon2Time   = 64
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-describing hash record for password.
	Hash(password string) (string, error)

	// Verify checks password against record.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an Internal
	// error when record cannot be parsed.
	Verify(password, record string) (bool, error)

	// NeedsUpgrade reports whether record was produced with other
	// parameters or another algorithm and should be rehashed.
	NeedsUpgrade(record string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
	random io.Reader
}

// HasherOption configures an Argon2idHasher.
type HasherOption func(*Argon2idHasher)

// WithParams overrides the cost parameters.
func WithParams(p Argon2Params) HasherOption {
	return func(h *Argon2idHasher) { h.params = p }
}

// WithSaltSource overrides the salt random source.
func WithSaltSource(r io.Reader) HasherOption {
	return func(h *Argon2idHasher) { h.random = r }
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher(opts ...HasherOption) *Argon2idHasher {
	h := &Argon2idHasher{params: DefaultArgon2Params, random: rand.Reader}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Params returns the hasher's current cost parameters.
func (h *Argon2idHasher) Params() Argon2Params { return h.params }

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := io.ReadFull(h.random, salt); err != nil {
		return "", apperr.Internal(oops.Code("AUTH_SALT_FAILED").Wrap(err))
	}

	return encodeArgon2id(h.params, salt, argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)), nil
}

// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func encodeArgon2id(p Argon2Params, salt, key []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

type argon2Record struct {
	version int
	params  Argon2Params
	salt    []byte
	key     []byte
}

func parseArgon2id(record string) (*argon2Record, error) {
	parts := strings.Split(record, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var rec argon2Record
	if _, err := fmt.Sscanf(parts[2], "v=%d", &rec.version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if rec.version != argon2.Version {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version %d", rec.version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	// threads must fit in uint8 to avoid silent truncation
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	if iterations == 0 || iterations > MaxArgon2Time {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("iterations value %d out of range", iterations)
	}
	if memory == 0 || memory > MaxArgon2Memory {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("memory value %d KiB out of range", memory)
	}

	var err error
	if rec.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if rec.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	keyLen := len(rec.key)
	if keyLen <= 0 || keyLen > 1<<30 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	rec.params = Argon2Params{
		Time:    iterations,
		Memory:  memory,
		Threads: uint8(threads),
		SaltLen: len(rec.salt),
		KeyLen:  uint32(keyLen),
	}
	return &rec, nil
}

// Verify checks if the password matches the record.
func (h *Argon2idHasher) Verify(password, record string) (bool, error) {
	rec, err := parseArgon2id(record)
	if err != nil {
		return false, apperr.Internal(err)
	}

	computed := argon2.IDKey([]byte(password), rec.salt, rec.params.Time, rec.params.Memory, rec.params.Threads, rec.params.KeyLen)
	return subtle.ConstantTimeCompare(computed, rec.key) == 1, nil
}

// NeedsUpgrade returns true if the record is not argon2id or uses
// parameters other than the hasher's current ones.
func (h *Argon2idHasher) NeedsUpgrade(record string) bool {
	rec, err := parseArgon2id(record)
	if err != nil {
		return true
	}
	return rec.params != h.params
}

var _ PasswordHasher = (*Argon2idHasher)(nil)
