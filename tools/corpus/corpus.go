package corpus

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/fsnotify/fsnotify"
)

// Document is one indexed chunk of the local research corpus.
type Document struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// Hit is a scored search result.
type Hit struct {
	SourceID string
	Title    string
	Fragment string
	Score    float64
}

// Corpus wraps a bleve full-text index over extracted report text files.
// Rebuilds swap the index under a lock so readers never see a half-built
// one.
type Corpus struct {
	mu     sync.RWMutex
	index  bleve.Index
	dir    string
	logger *log.Logger
}

// NewMem builds an empty in-memory corpus. Used by tests and by
// deployments with no local document directory.
func NewMem() (*Corpus, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("bleve mem index: %w", err)
	}
	return &Corpus{index: idx, logger: log.New(log.Writer(), "[CORPUS] ", log.LstdFlags)}, nil
}

// New builds a corpus over dir and indexes every *.txt file in it.
func New(dir string) (*Corpus, error) {
	c, err := NewMem()
	if err != nil {
		return nil, err
	}
	c.dir = dir
	if err := c.Rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

// Ingest adds or replaces a single document.
func (c *Corpus) Ingest(doc Document) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.index.Index(doc.SourceID, doc); err != nil {
		return fmt.Errorf("index %s: %w", doc.SourceID, err)
	}
	return nil
}

// Rebuild re-indexes the corpus directory from scratch. The new index
// replaces the old one atomically; partial progress is never visible.
func (c *Corpus) Rebuild() error {
	if c.dir == "" {
		return nil
	}
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("bleve mem index: %w", err)
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read corpus dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			c.logger.Printf("skip %s: %v", e.Name(), err)
			continue
		}
		doc := Document{
			SourceID: "pdf://" + strings.TrimSuffix(e.Name(), ".txt"),
			Title:    strings.TrimSuffix(e.Name(), ".txt"),
			Body:     string(b),
		}
		if err := idx.Index(doc.SourceID, doc); err != nil {
			return fmt.Errorf("index %s: %w", e.Name(), err)
		}
		n++
	}
	c.mu.Lock()
	old := c.index
	c.index = idx
	c.mu.Unlock()
	_ = old.Close()
	c.logger.Printf("indexed %d documents from %s", n, c.dir)
	return nil
}

// Search runs a query-string search and returns up to k hits.
func (c *Corpus) Search(ctx context.Context, q string, k int) ([]Hit, error) {
	c.mu.RLock()
	idx := c.index
	c.mu.RUnlock()

	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	req.Fields = []string{"*"}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("corpus search: %w", err)
	}
	var hits []Hit
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			SourceID: h.ID,
			Title:    str(h.Fields["title"]),
			Fragment: fragment(str(h.Fields["body"]), 400),
			Score:    h.Score,
		})
	}
	return hits, nil
}

// Watch rebuilds the index whenever the corpus directory changes. It
// blocks until ctx is done.
func (c *Corpus) Watch(ctx context.Context) error {
	if c.dir == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()
	if err := w.Add(c.dir); err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".txt") {
				continue
			}
			c.logger.Printf("corpus change (%s), rebuilding", ev.Op)
			if err := c.Rebuild(); err != nil {
				c.logger.Printf("rebuild failed: %v", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Printf("watcher error: %v", err)
		}
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func fragment(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n], " ")
	if cut <= 0 {
		cut = n
	}
	return s[:cut]
}
