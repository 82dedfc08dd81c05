package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sanitiza-group/cert-cli/internal/normalize"
)

// ListFilter narrows the admin listing of generated documents.
type ListFilter struct {
	Query          string    // accent-insensitive filename substring
	Extension      string    // "pdf", "xlsx"; empty means pdf
	ModifiedAfter  time.Time // zero means unbounded
	ModifiedBefore time.Time
	Limit          int // 0 means no limit
	Offset         int
}

// FileEntry describes one generated document.
type FileEntry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// List returns generated documents under the output directory, newest
// first, filtered per f. A missing output directory yields an empty list.
func (r *Resolver) List(f ListFilter) ([]FileEntry, error) {
	ext := strings.ToLower(strings.TrimPrefix(f.Extension, "."))
	if ext == "" {
		ext = "pdf"
	}
	query := normalize.Fold(f.Query)

	dirents, err := os.ReadDir(r.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileEntry{}, nil
		}
		return nil, eris.Wrap(err, "artifact: list output dir")
	}

	entries := make([]FileEntry, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), ext) {
			continue
		}
		if query != "" && !strings.Contains(normalize.Fold(name), query) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if !f.ModifiedAfter.IsZero() && mod.Before(f.ModifiedAfter) {
			continue
		}
		if !f.ModifiedBefore.IsZero() && mod.After(f.ModifiedBefore) {
			continue
		}

		entries = append(entries, FileEntry{
			Name:       name,
			Path:       filepath.Join(r.outputDir, name),
			SizeBytes:  info.Size(),
			ModifiedAt: mod,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModifiedAt.Equal(entries[j].ModifiedAt) {
			return entries[i].ModifiedAt.After(entries[j].ModifiedAt)
		}
		return entries[i].Name < entries[j].Name
	})

	if f.Offset > 0 {
		if f.Offset >= len(entries) {
			return []FileEntry{}, nil
		}
		entries = entries[f.Offset:]
	}
	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}
	return entries, nil
}
