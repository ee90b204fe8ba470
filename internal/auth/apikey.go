package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const apiKeyPrefix = "dcs_"

// Format: dcs_<uuid>_<64 hex chars>
const apiKeyLength = len(apiKeyPrefix) + 36 + 1 + 64

// GenerateAPIKey returns a new key and the hash stored for it. The key
// itself is shown once and never persisted.
func GenerateAPIKey() (key, hash string, err error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	key = apiKeyPrefix + uuid.NewString() + "_" + hex.EncodeToString(secret)
	return key, HashToken(key), nil
}

// HashToken is the storage hash of API keys and refresh tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey is a cheap format check run before any lookup.
func LooksLikeAPIKey(token string) bool {
	if len(token) != apiKeyLength || !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	rest := token[len(apiKeyPrefix):]
	if _, err := uuid.Parse(rest[:36]); err != nil {
		return false
	}
	if rest[36] != '_' {
		return false
	}
	_, err := hex.DecodeString(rest[37:])
	return err == nil
}
