package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore reads and writes file contents keyed by an opaque stored name.
type BlobStore interface {
	// Save streams content to a new blob and returns its stored name.
	Save(originalName string, content io.Reader) (storedName string, size int64, err error)
	// Open returns a reader over the blob. Caller closes.
	Open(storedName string) (io.ReadCloser, error)
	// Read returns the full blob contents.
	Read(storedName string) ([]byte, error)
}

// DiskStore is a BlobStore over a single upload directory. Blobs are
// write-once: stored names embed a UUID so they never collide.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the upload directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save writes the content under a fresh "uuid-name" stored name.
func (s *DiskStore) Save(originalName string, content io.Reader) (string, int64, error) {
	storedName := uuid.New().String() + "-" + SafeBaseName(originalName)

	f, err := os.Create(filepath.Join(s.dir, storedName))
	if err != nil {
		return "", 0, fmt.Errorf("create blob: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, content)
	if err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("write blob: %w", err)
	}

	return storedName, size, nil
}

// Open returns a reader over a stored blob.
func (s *DiskStore) Open(storedName string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(storedName)))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", storedName, err)
	}
	return f, nil
}

// Read returns the full contents of a stored blob.
func (s *DiskStore) Read(storedName string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(storedName)))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", storedName, err)
	}
	return data, nil
}

// SafeBaseName strips path components and characters that are unsafe in
// stored names, capping the length.
func SafeBaseName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "file"
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', 0, '<', '>', ':', '"', '|', '?', '*':
			return '_'
		}
		return r
	}, base)

	if len(cleaned) > 180 {
		cleaned = cleaned[:180]
	}
	if cleaned == "" {
		cleaned = "file"
	}
	return cleaned
}
