package selfupdate

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/macdeploy/internal/config"
	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/service/download"
	"github.com/oshokin/macdeploy/internal/version"
)

var (
	errUpdateFolderNotConfigured = errors.New("update folder is not configured")
	errNoChecksum                = errors.New("checksum missing for file")
)

// Options are inputs accepted by the selfupdate entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
}

// Run updates the macdeploy binary itself from the configured update folder.
// It fetches the release manifest, compares versions, downloads the new
// binary and applies it in place with checksum verification.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "selfupdate")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cfg.UpdateFolder == "" {
		return errUpdateFolderNotConfigured
	}

	client := download.NewClient(cfg.ConnectTimeout, cfg.DownloadRetries)

	desc, err := fetchDescription(ctx, client, cfg.UpdateFolder)
	if err != nil {
		return fmt.Errorf("fetch release manifest: %w", err)
	}

	if desc.VersionNumber == version.Short() {
		logger.InfoKV(ctx, "Already running the latest version", "version", version.Short())
		return nil
	}

	logger.InfoKV(ctx, "New version available",
		"local", version.Short(), "remote", desc.VersionNumber)

	if err = applyBinaryUpdate(ctx, client, cfg.UpdateFolder, desc); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Self-update applied", "version", desc.VersionNumber)

	return nil
}

// fetchDescription downloads and parses the release manifest.
func fetchDescription(ctx context.Context, client *download.Client, updateFolder string) (*Description, error) {
	manifestURL, err := FileURL(updateFolder, ManifestFilename)
	if err != nil {
		return nil, err
	}

	data, err := client.FetchBytes(ctx, manifestURL)
	if err != nil {
		return nil, err
	}

	var desc Description
	if err = yaml.Unmarshal(data, &desc); err != nil {
		return nil, err
	}

	return &desc, nil
}

// applyBinaryUpdate downloads the new binary and replaces the running one,
// verifying the manifest checksum before anything is swapped.
func applyBinaryUpdate(ctx context.Context, client *download.Client, updateFolder string, desc *Description) error {
	checksumBase64, ok := desc.Files[ExecutableName]
	if !ok {
		return fmt.Errorf("%s: %w", ExecutableName, errNoChecksum)
	}

	checksum, err := base64.StdEncoding.DecodeString(checksumBase64)
	if err != nil {
		return err
	}

	binaryURL, err := FileURL(updateFolder, ExecutableName)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Downloading new binary", "url", binaryURL)

	data, err := client.FetchBytes(ctx, binaryURL)
	if err != nil {
		return err
	}

	targetPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own executable: %w", err)
	}

	logger.InfoKV(ctx, "Applying update", "target", targetPath)

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: DefaultFileMode,
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	oldFileName := targetPath + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}
