package selfupdate

import (
	"crypto"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/oshokin/macdeploy/internal/version"

	// Ensure SHA512 is available for checksum calculation.
	_ "crypto/sha512"
)

var errHashUnavailable = errors.New("hash function unavailable")

const (
	// ManifestFilename stores the release description hosted in the update folder.
	ManifestFilename = "macdeploy-version.yaml"

	// ExecutableName is the artifact key for the deployer binary itself.
	ExecutableName = "macdeploy"

	// DefaultFileMode is applied to the replaced binary.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction is used to calculate release file hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512

	// defaultMapCapacity is the default initial capacity for maps.
	defaultMapCapacity = 4
)

// Description contains metadata about a published macdeploy release.
type Description struct {
	// VersionNumber is the semantic version of this release.
	VersionNumber string `yaml:"version"`
	// Files maps filenames to their base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// NewDescription produces a Description initialized with the build version.
func NewDescription() *Description {
	return &Description{
		VersionNumber: version.Short(),
		Files:         make(map[string]string, defaultMapCapacity),
	}
}

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(filePath string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, err
	}

	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// FileURL composes the URL of a file inside the update folder,
// normalizing duplicate slashes when joining the path.
func FileURL(updateFolder, fileName string) (string, error) {
	folderURL, err := url.Parse(updateFolder)
	if err != nil {
		return "", err
	}

	folderURL.Path = path.Join(folderURL.Path, fileName)

	return folderURL.String(), nil
}
