package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrMiss reports that no entry exists for the key.
var ErrMiss = errors.New("cache miss")

// ErrExpired reports that an entry exists but is older than its TTL.
// Callers must treat it the same as ErrMiss: re-fetch, then Put.
var ErrExpired = errors.New("cache entry expired")

// Cache fronts all expensive lookups with key-value storage under TTL.
// Put is last-write-wins; there are no merge semantics.
type Cache interface {
	Get(ctx context.Context, key string, out interface{}) error
	Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// IsMiss reports whether err should be handled as a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss) || errors.Is(err, ErrExpired)
}

// Key builds a cache key from company, query kind and a parameters hash.
func Key(company, kind string, params ...string) string {
	h := sha1.Sum([]byte(strings.Join(params, "\x1f")))
	return sanitize(company) + ":" + kind + ":" + hex.EncodeToString(h[:8])
}

func sanitize(s string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(s) {
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
