// Package security issues and verifies the signed worker tokens that
// authenticate API callers.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretBytes is the HMAC key length.
const SecretBytes = 32

// GenerateSecret creates a random HMAC key.
func GenerateSecret() ([]byte, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return b, nil
}

// LoadOrCreateSecret loads the signing key from home/keys/jwt.key, or
// generates one on first run.
func LoadOrCreateSecret(home string) ([]byte, error) {
	keyDir := filepath.Join(home, "keys")
	keyPath := filepath.Join(keyDir, "jwt.key")

	if raw, err := os.ReadFile(keyPath); err == nil {
		secret, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode signing key: %w", err)
		}
		if len(secret) < SecretBytes {
			return nil, fmt.Errorf("signing key too short: %d bytes", len(secret))
		}
		return secret, nil
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(secret)), 0600); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	return secret, nil
}
