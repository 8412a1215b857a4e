package idgen

import (
	"crypto/rand"
	"fmt"
)

const charset = "0123456789abcdefghijklmnopqrstuvwxyz"

// bytes at or above this value are rejected so every charset symbol is equally likely
const rejectAbove = 256 - (256 % len(charset))

// GenerateSecureID returns prefix + "_" + length random characters from [0-9a-z].
func GenerateSecureID(prefix string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("id length must be positive, got %d", length)
	}

	encoded := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(encoded) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			encoded = append(encoded, charset[int(b)%len(charset)])
			if len(encoded) == length {
				break
			}
		}
	}

	return fmt.Sprintf("%s_%s", prefix, string(encoded)), nil
}

// NewSessionID returns an unguessable stream session id.
func NewSessionID() (string, error) {
	return GenerateSecureID("sess", 32)
}
