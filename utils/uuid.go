package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ShareTokenBytes is the entropy of a share token. Tokens are hex encoded.
const ShareTokenBytes = 16

// GetToken returns a random token.
func GetToken() string {
	return uuid.NewString()
}

// ShortSuffix returns 8 random hex chars from a UUID.
func ShortSuffix() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

// NewShareToken returns 32 lowercase hex chars from crypto/rand.
func NewShareToken() (string, error) {
	b := make([]byte, ShareTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
