package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oshokin/macdeploy/internal/config"
)

// Repository defines persistence operations for the update metadata.
type Repository interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, lastModified string) error
}

// FileRepository persists the remote image's Last-Modified value to a flat
// file: a single line holding the raw header string from the most recent
// successful install. Absence of the file means "unknown, assume update
// required". The file is created on first install and overwritten on every
// subsequent one, never deleted.
type FileRepository struct {
	// path is the filesystem location of the metadata file.
	path string
	// mu protects concurrent access to the metadata file.
	mu sync.Mutex
}

// ErrNotFound is returned when the metadata file does not exist yet.
var ErrNotFound = errors.New("update metadata not found")

// directoryPermissions is applied when the metadata directory is created.
const directoryPermissions os.FileMode = 0o755

// NewFileRepository creates a repository that reads/writes the flat file at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the stored Last-Modified value from disk.
// A trailing newline is tolerated so hand-edited files still compare cleanly.
func (r *FileRepository) Load(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read metadata file: %w", err)
	}

	return strings.TrimRight(string(contents), "\r\n"), nil
}

// Save writes the Last-Modified value to disk, creating the parent directory
// if needed. Callers must only invoke this after a fully verified install.
func (r *FileRepository) Save(_ context.Context, lastModified string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), directoryPermissions); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}

	data := []byte(lastModified + "\n")
	if err := os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}

	return nil
}
