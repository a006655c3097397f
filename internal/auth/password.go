package auth

import (
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// HasherParams tunes the Argon2id cost. Defaults follow the RFC 9106
// low-memory recommendation.
type HasherParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultHasherParams returns the production cost parameters.
func DefaultHasherParams() HasherParams {
	return HasherParams{Time: 2, Memory: 64 * 1024, Threads: 1, KeyLen: 32}
}

// Hasher derives and verifies password hashes with Argon2id. It is
// pure: the caller supplies the per-account salt and stores the result.
type Hasher struct {
	params HasherParams
}

// NewHasher constructs a Hasher with the given cost parameters.
func NewHasher(params HasherParams) *Hasher {
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 || params.KeyLen == 0 {
		params = DefaultHasherParams()
	}
	return &Hasher{params: params}
}

// Hash derives the stored hash for a password and salt. Deterministic
// for identical inputs.
func (h *Hasher) Hash(password, salt string) string {
	key := argon2.IDKey([]byte(password), []byte(salt), h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return base64.RawStdEncoding.EncodeToString(key)
}

// Verify reports whether password+salt derive the stored hash. The
// comparison is constant-time and any mismatch yields false, never an
// error.
func (h *Hasher) Verify(password, salt, stored string) bool {
	expected, err := base64.RawStdEncoding.DecodeString(stored)
	if err != nil || len(expected) == 0 {
		return false
	}
	key := argon2.IDKey([]byte(password), []byte(salt), h.params.Time, h.params.Memory, h.params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}
