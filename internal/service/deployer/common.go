package deployer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/service/common"
)

const (
	// markerFilename marks that a deployment is running right now to avoid
	// parallel execution on the same machine.
	markerFilename = "macdeploy-run-marker.bin"

	// markerLifetime is the period after which a stale run marker is
	// ignored. Generous because large disk images take a while to fetch.
	markerLifetime = 30 * time.Minute

	// backoffCapMultiplier caps the wait-for-application backoff at this
	// many base poll intervals.
	backoffCapMultiplier = 8

	// fallbackExecutableName is used when the own executable path cannot
	// be resolved.
	fallbackExecutableName = "macdeploy"
)

var errDeployerAlreadyRunning = errors.New("the deployer is already running")

// defaultMarkerPath places the run marker in the system temp directory.
func defaultMarkerPath() string {
	return filepath.Join(os.TempDir(), markerFilename)
}

// ownExecutableName returns the base name of the running binary, used to
// detect sibling deployer instances in the process table.
func ownExecutableName() string {
	executable, err := os.Executable()
	if err != nil {
		return fallbackExecutableName
	}

	return filepath.Base(executable)
}

// isDeployerRunningNow checks presence of the run marker and attempts
// recovery if it looks stale.
func isDeployerRunningNow(ctx context.Context, markerPath string, inspector common.ProcessInspector) bool {
	logger.Info(ctx, "Checking for the presence of a run marker")

	fileInfo, err := os.Stat(markerPath)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The run marker is too old, attempting cleanup")

		if err = inspector.TerminateProcessByName(ownExecutableName()); err != nil {
			return true
		}

		if err = os.Remove(markerPath); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "Run marker not found, continuing")
		return false
	}

	logger.Infof(ctx, "Unable to read run marker: %v", err)

	return false
}
