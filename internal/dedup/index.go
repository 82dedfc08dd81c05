// Package dedup keeps an append-only ledger of processed uploads keyed by
// content hash, so re-submitted spreadsheets are detected before any work
// happens.
package dedup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Entry is one processed upload. The ledger is JSON Lines: one entry per
// line, appended and never rewritten.
type Entry struct {
	Hash              string    `json:"hash"`
	Filename          string    `json:"filename"`
	CertificateNumber string    `json:"numero_certificado"`
	CertificateID     string    `json:"cert_id"`
	PDF               string    `json:"pdf"`
	Spreadsheet       string    `json:"planilha"`
	ProcessedAt       time.Time `json:"processed_at"`
}

// Index is the on-disk ledger. A mutex serializes all reads and appends so
// concurrent uploads cannot interleave partial lines or race a lookup past
// an in-flight append.
type Index struct {
	path string
	mu   sync.Mutex
}

// NewIndex creates an Index backed by the JSONL file at path. The file is
// created lazily on first append.
func NewIndex(path string) *Index {
	return &Index{path: path}
}

// HashBytes returns the hex SHA-256 of the upload content, the ledger key.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Exists reports whether hash was already recorded. Malformed lines are
// skipped with a warning; a missing ledger file means nothing was processed
// yet.
func (ix *Index) Exists(hash string) (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entries, err := ix.readLocked()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

// Lookup returns the recorded entry for hash, or nil when absent.
func (ix *Index) Lookup(hash string) (*Entry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entries, err := ix.readLocked()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Hash == hash {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Entries returns every well-formed ledger entry in append order.
func (ix *Index) Entries() ([]Entry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.readLocked()
}

// Add appends entry to the ledger, creating the file and parent directories
// on first use. ProcessedAt is stamped when unset.
func (ix *Index) Add(entry Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return eris.Wrap(err, "dedup: create ledger dir")
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "dedup: marshal entry")
	}

	f, err := os.OpenFile(ix.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrap(err, "dedup: open ledger")
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return eris.Wrap(err, "dedup: append entry")
	}
	return nil
}

func (ix *Index) readLocked() ([]Entry, error) {
	f, err := os.Open(ix.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "dedup: open ledger")
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			zap.L().Warn("dedup: skipping malformed ledger line",
				zap.String("path", ix.path),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "dedup: scan ledger")
	}
	return entries, nil
}
