package crypto

import (
	"crypto/rand"
	"encoding/base64"
)

// NewVerificationToken returns an opaque random token for the email
// verification lifecycle fields on a principal record.
func NewVerificationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
