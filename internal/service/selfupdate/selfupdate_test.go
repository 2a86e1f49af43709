package selfupdate

import (
	"crypto/sha512"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/macdeploy/internal/version"
)

// TestDescriptionRoundtrip ensures the manifest survives YAML marshaling.
func TestDescriptionRoundtrip(t *testing.T) {
	t.Parallel()

	desc := NewDescription()
	desc.Files[ExecutableName] = "c2hhNTEyLWNoZWNrc3Vt"

	require.Equal(t, version.Short(), desc.VersionNumber)

	data, err := yaml.Marshal(desc)
	require.NoError(t, err)

	var loaded Description
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	require.Equal(t, desc.VersionNumber, loaded.VersionNumber)
	require.Equal(t, desc.Files, loaded.Files)
}

// TestGetFileChecksum verifies the SHA-512 digest of a known file.
func TestGetFileChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.WriteFile(path, []byte("release bytes"), 0o644))

	got, err := GetFileChecksum(path)
	require.NoError(t, err)

	want := sha512.Sum512([]byte("release bytes"))
	require.Equal(t, want[:], got)
}

// TestGetFileChecksum_MissingFile surfaces the underlying stat error.
func TestGetFileChecksum_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := GetFileChecksum(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFileURL normalizes duplicate slashes when composing file URLs.
func TestFileURL(t *testing.T) {
	t.Parallel()

	got, err := FileURL("https://updates.local/macdeploy/", ManifestFilename)
	require.NoError(t, err)
	require.Equal(t, "https://updates.local/macdeploy/"+ManifestFilename, got)

	got, err = FileURL("https://updates.local/macdeploy//nested/", "macdeploy")
	require.NoError(t, err)
	require.Equal(t, "https://updates.local/macdeploy/nested/macdeploy", got)
}
