package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Key identifies a cached response: the absolute request URL plus the
// authorization context it was fetched under.
type Key struct {
	// URL is the absolute request URL.
	URL string

	// Authorization is the resolved Authorization header value ("" when the
	// request was unauthenticated).
	Authorization string
}

// String generates a deterministic cache key string.
// Format: fetch:<len(url)>:<url>[:auth=<fingerprint>]
//
// The URL is length-prefixed so no URL can imitate the auth suffix of
// another key. The authorization value is hashed so tokens never end up in
// keys or logs.
//
// Example:
//
//	fetch:29:https://api.example.com/v1/me:auth=2c26b46b68ffc68f
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(k.URL) + 32)
	b.WriteString("fetch:")
	b.WriteString(strconv.Itoa(len(k.URL)))
	b.WriteByte(':')
	b.WriteString(k.URL)

	if k.Authorization != "" {
		b.WriteString(":auth=")
		b.WriteString(fingerprint(k.Authorization))
	}

	return b.String()
}

// fingerprint returns the first 16 hex characters of the SHA-256 digest.
func fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
