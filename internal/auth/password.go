package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a bcrypt hash for storage. The default cost is fine
// for an operator-facing dashboard.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(hash), err
}

// ComparePassword checks a plain password against its stored bcrypt hash.
func ComparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
