package heatmap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultTTL is how long a written heatmap stays fresh.
const DefaultTTL = 12 * time.Hour

// payload is the on-disk cache file shape.
type payload struct {
	Data []Item `json:"data"`
}

// FileCache persists a computed heatmap to a JSON file. Freshness is judged
// by file modification time against the TTL; there is no locking, so
// concurrent recomputation degrades to last-writer-wins.
type FileCache struct {
	path string
	ttl  time.Duration
}

// NewFileCache creates a FileCache at path with the given TTL
// (DefaultTTL when zero).
func NewFileCache(path string, ttl time.Duration) *FileCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FileCache{path: path, ttl: ttl}
}

// Read returns the cached items when the file exists, is fresh, and
// deserializes cleanly. Any failure is a miss, never an error: correctness
// degrades to recomputation.
func (c *FileCache) Read(now time.Time) ([]Item, bool) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, false
	}
	if now.Sub(info.ModTime()) > c.ttl {
		return nil, false
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		zap.L().Warn("heatmap cache: read failed", zap.String("path", c.path), zap.Error(err))
		return nil, false
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		zap.L().Warn("heatmap cache: corrupt file, recomputing", zap.String("path", c.path), zap.Error(err))
		return nil, false
	}
	return p.Data, true
}

// Write serializes the items to the cache file, creating parent directories
// as needed.
func (c *FileCache) Write(items []Item) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return eris.Wrap(err, "heatmap cache: create dir")
	}
	data, err := json.Marshal(payload{Data: items})
	if err != nil {
		return eris.Wrap(err, "heatmap cache: marshal")
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return eris.Wrap(err, "heatmap cache: write")
	}
	return nil
}

// Clear removes the cache file. A missing file is not an error.
func (c *FileCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "heatmap cache: clear")
	}
	return nil
}

// Status describes the cache file for the admin surface.
type Status struct {
	Exists     bool      `json:"exists"`
	Fresh      bool      `json:"fresh"`
	WrittenAt  time.Time `json:"written_at"`
	AgeSeconds float64   `json:"age_seconds"`
	TTLSeconds float64   `json:"ttl_seconds"`
}

// Status reports whether the cache file exists and is still fresh.
func (c *FileCache) Status(now time.Time) Status {
	st := Status{TTLSeconds: c.ttl.Seconds()}
	info, err := os.Stat(c.path)
	if err != nil {
		return st
	}
	age := now.Sub(info.ModTime())
	st.Exists = true
	st.WrittenAt = info.ModTime()
	st.AgeSeconds = age.Seconds()
	st.Fresh = age <= c.ttl
	return st
}
