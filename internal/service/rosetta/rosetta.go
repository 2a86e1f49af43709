package rosetta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/service/common"
)

const (
	// DefaultMarkerPath is the file whose presence proves Rosetta is installed.
	DefaultMarkerPath = "/Library/Apple/usr/share/rosetta/rosetta"

	// softwareUpdateExecutable also runs during unrelated system updates,
	// which must finish before Rosetta can be installed.
	softwareUpdateExecutable = "softwareupdate"

	// appleSiliconArch is the GOARCH value that requires the translation layer.
	appleSiliconArch = "arm64"
)

// Checker ensures the Rosetta translation layer is present before an Intel
// binary bundle is installed on Apple Silicon. Architecture, marker path,
// runner and process inspector are injectable so the flow can be tested on
// any platform.
type Checker struct {
	arch       string
	markerPath string
	runner     common.Runner
	inspector  common.ProcessInspector
	// pollInterval and waitTimeout bound the wait for a competing
	// softwareupdate process.
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// Option configures the checker.
type Option func(*Checker)

// WithArch overrides the detected CPU architecture.
func WithArch(arch string) Option {
	return func(c *Checker) {
		c.arch = arch
	}
}

// WithMarkerPath overrides the Rosetta marker file location.
func WithMarkerPath(path string) Option {
	return func(c *Checker) {
		c.markerPath = path
	}
}

// NewChecker builds a checker with production defaults.
func NewChecker(
	runner common.Runner,
	inspector common.ProcessInspector,
	pollInterval, waitTimeout time.Duration,
	opts ...Option,
) *Checker {
	c := &Checker{
		arch:         runtime.GOARCH,
		markerPath:   DefaultMarkerPath,
		runner:       runner,
		inspector:    inspector,
		pollInterval: pollInterval,
		waitTimeout:  waitTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Ensure installs Rosetta if the machine needs it and does not have it.
// On Intel machines it is a no-op. A nonzero installer exit is fatal.
func (c *Checker) Ensure(ctx context.Context) error {
	if c.arch != appleSiliconArch {
		logger.DebugKV(ctx, "Translation layer not required", "arch", c.arch)
		return nil
	}

	if _, err := os.Stat(c.markerPath); err == nil {
		logger.Debug(ctx, "Translation layer already present")
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check translation layer marker: %w", err)
	}

	// A system update holds the same locks the Rosetta installer needs.
	logger.Info(ctx, "Waiting for a running software update to finish")

	err := common.WaitUntilProcessExits(
		ctx, c.inspector, softwareUpdateExecutable, c.pollInterval, c.waitTimeout)
	if err != nil {
		return fmt.Errorf("wait for software update: %w", err)
	}

	logger.Info(ctx, "Installing the Rosetta translation layer")

	err = c.runner.Run(ctx, softwareUpdateExecutable, "--install-rosetta", "--agree-to-license")
	if err != nil {
		return fmt.Errorf("install translation layer: %w", err)
	}

	logger.Info(ctx, "Translation layer installed")

	return nil
}
