package apikey

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	keyIDBytes  = 8
	keyIDLength = 12
	secretBytes = 32
	tokenSep    = "."
)

// generateKeyID returns the first 12 hex characters of 8 random bytes.
func generateKeyID(rand io.Reader) (string, error) {
	b := make([]byte, keyIDBytes)
	if _, err := io.ReadFull(rand, b); err != nil {
		return "", fmt.Errorf("failed to generate key id: %w", err)
	}
	return hex.EncodeToString(b)[:keyIDLength], nil
}

// generateSecret returns 32 random bytes as unpadded URL-safe base64.
// The alphabet never contains the token separator.
func generateSecret(rand io.Reader) (string, error) {
	b := make([]byte, secretBytes)
	if _, err := io.ReadFull(rand, b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// formatToken joins prefix, key id and secret into the wire format.
func formatToken(prefix, keyID, secret string) string {
	return prefix + tokenSep + keyID + tokenSep + secret
}

// parseToken splits a trimmed token into its three segments. It reports
// false unless there are exactly three parts with the expected prefix
// and non-empty id and secret.
func parseToken(token, prefix string) (keyID, secret string, ok bool) {
	parts := strings.Split(token, tokenSep)
	if len(parts) != 3 {
		return "", "", false
	}
	if parts[0] != prefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
