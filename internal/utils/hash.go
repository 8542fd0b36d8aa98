package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// HashOtp returns a bcrypt hash of the one-time code so stores never hold it
// in the clear.
func HashOtp(code string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckOtp compares a stored bcrypt hash with a presented code.
func CheckOtp(hashedCode, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedCode), []byte(code)) == nil
}

// HashToken returns the hex sha256 digest of a token. Session records and
// revocation marks are keyed by this digest rather than the raw value.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
