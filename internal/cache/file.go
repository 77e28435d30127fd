package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// envelope wraps a stored value with its creation timestamp so Get can
// enforce TTL without touching the value itself.
type envelope struct {
	CreatedAt time.Time       `json:"created_at"`
	Value     json.RawMessage `json:"value"`
}

// FileCache stores one JSON file per key under a data directory.
// Writes go through a temp file and rename so concurrent readers never
// observe a partial entry.
type FileCache struct {
	dir string
}

// NewFileCache creates the cache directory if needed
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(key string) string {
	safe := strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(c.dir, safe+".json")
}

// Get loads the entry for key into out, enforcing the TTL recorded at Put time.
func (c *FileCache) Get(ctx context.Context, key string, out interface{}) error {
	b, err := os.ReadFile(c.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrMiss
		}
		return fmt.Errorf("cache read: %w", err)
	}
	var env struct {
		envelope
		TTL time.Duration `json:"ttl"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		// Corrupt entry behaves as a miss; the next Put overwrites it.
		return ErrMiss
	}
	if env.TTL > 0 && time.Since(env.CreatedAt) > env.TTL {
		return ErrExpired
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		return fmt.Errorf("cache decode: %w", err)
	}
	return nil
}

// Put stores value under key with the given TTL, last write wins.
func (c *FileCache) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	b, err := json.Marshal(struct {
		envelope
		TTL time.Duration `json:"ttl"`
	}{envelope{CreatedAt: time.Now(), Value: raw}, ttl})
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cache write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache write: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Invalidate removes the entry for key if present.
func (c *FileCache) Invalidate(ctx context.Context, key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
