package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const (
	numericCodeDigits = 6
	resetTokenBytes   = 32
	saltBytes         = 32
)

var numericCodeMax = big.NewInt(1_000_000)

// CodeGenerator produces single-use verification codes and reset
// tokens. All output comes from crypto/rand; the engine is responsible
// for clearing a stored value once it has been consumed.
type CodeGenerator struct{}

// NumericCode returns a zero-padded 6-digit code.
func (CodeGenerator) NumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, numericCodeMax)
	if err != nil {
		return "", fmt.Errorf("auth: generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", numericCodeDigits, n), nil
}

// ResetToken returns an opaque token usable as a unique lookup key.
func (CodeGenerator) ResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewSalt returns a fresh per-account password salt.
func (CodeGenerator) NewSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
