package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultIterations is the PBKDF2 work factor for newly hashed passwords.
const DefaultIterations = 200000

const (
	saltLen = 16
	keyLen  = 32
)

// HashPassword derives a PBKDF2-SHA256 hash encoded as
// pbkdf2_sha256$<iterations>$<salt>$<key> with URL-safe unpadded base64.
func HashPassword(password string) (string, error) {
	return hashPassword(password, DefaultIterations)
}

func hashPassword(password string, iterations int) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	dk := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	enc := base64.RawURLEncoding
	return fmt.Sprintf("pbkdf2_sha256$%d$%s$%s", iterations, enc.EncodeToString(salt), enc.EncodeToString(dk)), nil
}

// VerifyPassword checks password against an encoded hash in constant time.
// Malformed hashes verify as false rather than erroring.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != "pbkdf2_sha256" {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < 1 {
		return false
	}
	salt, err := decodeURLSafe(parts[2])
	if err != nil || len(salt) == 0 {
		return false
	}
	expected, err := decodeURLSafe(parts[3])
	if err != nil || len(expected) == 0 {
		return false
	}
	dk := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
	return hmac.Equal(dk, expected)
}

// decodeURLSafe accepts both padded and unpadded URL-safe base64.
func decodeURLSafe(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
