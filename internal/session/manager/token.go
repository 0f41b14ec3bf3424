package manager

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenLength is the length of every session id and persistent login token.
const TokenLength = 64

// NewToken returns a 64 character hex token from 32 random bytes.
func NewToken() (string, error) {
	buf := make([]byte, TokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ValidToken reports whether raw has the shape of a token minted by NewToken.
func ValidToken(raw string) bool {
	if len(raw) != TokenLength {
		return false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
