package onboard

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// PasswordLength is the length of generated student passwords.
const PasswordLength = 12

// passwordAlphabet deliberately excludes characters that are ambiguous on
// a printed credential sheet (0/O, 1/l/I); instructors hand these out on
// paper.
const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!@#$%&*"

// GeneratePassword returns a cryptographically random password. The value
// is returned exactly once per account; only the bcrypt hash is stored.
func GeneratePassword() (string, error) {
	buf := make([]byte, PasswordLength)
	max := big.NewInt(int64(len(passwordAlphabet)))

	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}

	return string(buf), nil
}

// HashPassword derives the stored form of a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
