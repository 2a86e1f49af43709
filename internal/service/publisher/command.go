package publisher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/macdeploy/internal/config"
	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/service/selfupdate"
)

// Options contains inputs for the publisher entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// BinaryPath is the freshly built macdeploy binary to describe.
	// Defaults to the executable name in the working directory.
	BinaryPath string
	// OutputPath is where the release manifest is written.
	// Defaults to the standard manifest filename.
	OutputPath string
}

var errBinaryNotFound = errors.New("release binary not found")

// Run computes the release checksum and writes the manifest the selfupdate
// command consumes. The manifest and the binary must then be uploaded to the
// update folder together.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "publish")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		binaryPath = selfupdate.ExecutableName
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = selfupdate.ManifestFilename
	}

	if _, err = os.Stat(binaryPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", binaryPath, errBinaryNotFound)
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", binaryPath, err)
	}

	desc := selfupdate.NewDescription()

	checksum, err := selfupdate.GetFileChecksum(binaryPath)
	if err != nil {
		return fmt.Errorf("checksum %s: %w", binaryPath, err)
	}

	desc.Files[selfupdate.ExecutableName] = base64.StdEncoding.EncodeToString(checksum)

	contents, err := yaml.Marshal(desc)
	if err != nil {
		return err
	}

	if err = os.WriteFile(outputPath, contents, selfupdate.DefaultFileMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	logger.InfoKV(ctx, "Release manifest written",
		"path", outputPath, "version", desc.VersionNumber)

	if cfg.UpdateFolder != "" {
		logger.Infof(ctx, "Upload %s and %s to %s to publish this release",
			outputPath, binaryPath, cfg.UpdateFolder)
	}

	return nil
}
