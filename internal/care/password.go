package care

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const defaultCost = bcrypt.DefaultCost

// HashPassword encrypts the supplied plaintext with bcrypt.
func HashPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrMissingPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), defaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares plaintext against a stored password. Stored values
// that are not bcrypt hashes come from older records, which kept the
// lowercased plaintext; those compare case-insensitively and report legacy.
func CheckPassword(stored, plaintext string) (ok, legacy bool) {
	if isBcryptHash(stored) {
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext))
		return err == nil, false
	}
	if stored == "" {
		return false, true
	}
	return strings.EqualFold(stored, plaintext), true
}

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
