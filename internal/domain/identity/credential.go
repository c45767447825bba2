package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
	guestTokenBytes   = 32
)

// Hasher turns secrets into stored credential hashes.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}

// guestCredential hashes a random token nobody is told, so a guest record can
// never be logged into.
func guestCredential(h Hasher) (string, error) {
	buf := make([]byte, guestTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate guest token: %w", err)
	}
	return h.Hash(base64.RawURLEncoding.EncodeToString(buf))
}
