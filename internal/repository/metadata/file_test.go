package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.lastmodified"))

	value, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, value)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns the same value.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "logs", "GIMP.lastmodified")
	repo := NewFileRepository(file)

	const want = "Mon, 01 Jan 2024 00:00:00 GMT"
	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Stored as a single line with a trailing newline.
	contents, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, want+"\n", string(contents))
}

// TestFileRepository_Overwrite checks that every save replaces the previous value.
func TestFileRepository_Overwrite(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "GIMP.lastmodified"))

	require.NoError(t, repo.Save(context.Background(), "Mon, 01 Jan 2024 00:00:00 GMT"))
	require.NoError(t, repo.Save(context.Background(), "Tue, 02 Jan 2024 00:00:00 GMT"))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Tue, 02 Jan 2024 00:00:00 GMT", got)
}
