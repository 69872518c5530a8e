package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/rs/xid"
)

// NewID returns a sortable, globally unique identifier with the given prefix.
func NewID(prefix string) string {
	id := xid.New().String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewToken returns a URL-safe random token carrying size bytes of entropy.
func NewToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
