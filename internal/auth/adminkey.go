package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyVerifier checks a bearer token against a bcrypt-hashed
// CONVEX_ADMIN_KEY.
type AdminKeyVerifier struct {
	hash string
}

// NewAdminKeyVerifier takes the bcrypt hash of CONVEX_ADMIN_KEY computed
// at startup; an empty hash disables the bypass entirely.
func NewAdminKeyVerifier(hash string) AdminKeyVerifier {
	return AdminKeyVerifier{hash: hash}
}

func (v AdminKeyVerifier) Enabled() bool {
	return v.hash != ""
}

func (v AdminKeyVerifier) Verify(candidate string) bool {
	if !v.Enabled() || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(candidate)) == nil
}

// HashAdminKey hashes a raw CONVEX_ADMIN_KEY for storage in config.
func HashAdminKey(raw string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
