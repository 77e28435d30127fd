package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newFileCache(t *testing.T) *FileCache {
	t.Helper()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	return c
}

func TestFileCacheRoundTrip(t *testing.T) {
	c := newFileCache(t)
	ctx := context.Background()

	in := payload{Name: "acme", Count: 3}
	if err := c.Put(ctx, "k", in, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var out payload
	if err := c.Get(ctx, "k", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestFileCacheMiss(t *testing.T) {
	c := newFileCache(t)
	var out payload
	err := c.Get(context.Background(), "absent", &out)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if !IsMiss(err) {
		t.Fatal("IsMiss must cover ErrMiss")
	}
}

func TestFileCacheExpiry(t *testing.T) {
	c := newFileCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "k", payload{Name: "old"}, time.Nanosecond); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var out payload
	err := c.Get(ctx, "k", &out)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if !IsMiss(err) {
		t.Fatal("expired entries must be handled as misses")
	}
}

func TestFileCacheLastWriteWins(t *testing.T) {
	c := newFileCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "k", payload{Name: "first"}, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, "k", payload{Name: "second"}, time.Hour); err != nil {
		t.Fatal(err)
	}
	var out payload
	if err := c.Get(ctx, "k", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Name != "second" {
		t.Fatalf("expected last write, got %q", out.Name)
	}
}

func TestFileCacheInvalidate(t *testing.T) {
	c := newFileCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "k", payload{Name: "x"}, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	var out payload
	if err := c.Get(ctx, "k", &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after invalidate, got %v", err)
	}
	// Invalidating an absent key is not an error.
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate absent: %v", err)
	}
}

func TestFileCacheCorruptEntryIsMiss(t *testing.T) {
	c := newFileCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "k", payload{Name: "x"}, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, "k.json"), []byte("{garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out payload
	if err := c.Get(ctx, "k", &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("corrupt entry must behave as a miss, got %v", err)
	}
}

func TestKeyStableAndSanitized(t *testing.T) {
	a := Key("Acme Corp!", "retrieval", "q1", "q2")
	b := Key("Acme Corp!", "retrieval", "q1", "q2")
	if a != b {
		t.Fatalf("key not stable: %q vs %q", a, b)
	}
	if a == Key("Acme Corp!", "retrieval", "q1") {
		t.Fatal("different params must give different keys")
	}
	// Parameter boundaries matter: ["ab","c"] != ["a","bc"].
	if Key("x", "k", "ab", "c") == Key("x", "k", "a", "bc") {
		t.Fatal("parameter boundaries lost in hashing")
	}
	for _, r := range a {
		if r == ' ' || r == '!' || r == '/' {
			t.Fatalf("unsanitized rune %q in key %q", r, a)
		}
	}
}
