package deployer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/macdeploy/internal/config"
	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/service/common"
)

var errBundleMissingAfterCopy = errors.New("bundle missing after copy")

// install mounts the downloaded image, wholesale-replaces the application
// bundle, verifies the result, unmounts, fixes ownership and deletes the
// temporary image. Mount, copy-verify and unmount failures are fatal. The
// replace itself is remove-then-copy, not atomic: a crash in between leaves
// the application absent or partially copied until the next run repairs it.
func (s *service) install(ctx context.Context) error {
	if err := s.waitForApplicationToQuit(ctx); err != nil {
		return fmt.Errorf("wait for application to quit: %w", err)
	}

	logger.InfoKV(ctx, "Mounting disk image", "image", s.cfg.TempImagePath, "mountpoint", s.cfg.MountPoint)

	err := s.runner.Run(ctx, "hdiutil", "attach", s.cfg.TempImagePath,
		"-mountpoint", s.cfg.MountPoint, "-nobrowse", "-noverify", "-readonly")
	if err != nil {
		return fmt.Errorf("mount disk image: %w", err)
	}

	if err = s.replaceBundle(ctx); err != nil {
		// Best-effort cleanup.
		if detachErr := s.runner.Run(ctx, "hdiutil", "detach", s.cfg.MountPoint); detachErr != nil {
			logger.WarnKV(ctx, "Unable to unmount image after failed copy", "error", detachErr)
		}

		return err
	}

	logger.InfoKV(ctx, "Unmounting disk image", "mountpoint", s.cfg.MountPoint)

	if err = s.runner.Run(ctx, "hdiutil", "detach", s.cfg.MountPoint); err != nil {
		return fmt.Errorf("unmount disk image: %w", err)
	}

	logger.InfoKV(ctx, "Fixing bundle ownership", "owner", s.cfg.BundleOwner)

	if err = s.runner.Run(ctx, "chown", "-R", s.cfg.BundleOwner, s.cfg.BundlePath()); err != nil {
		return fmt.Errorf("fix bundle ownership: %w", err)
	}

	if err = os.Remove(s.cfg.TempImagePath); err != nil {
		logger.WarnKV(ctx, "Unable to delete temporary image", "path", s.cfg.TempImagePath, "error", err)
	}

	return nil
}

// waitForApplicationToQuit applies the configured termination policy before
// the bundle is replaced: kill the running instance immediately, or poll
// with growing backoff until the user closes it.
func (s *service) waitForApplicationToQuit(ctx context.Context) error {
	if s.cfg.Termination == config.TerminationPolicyTerminate {
		logger.InfoKV(ctx, "Terminating running application", "app", s.cfg.AppName)
		return s.inspector.TerminateProcessByName(s.cfg.AppName)
	}

	running, err := s.inspector.IsProcessRunning(s.cfg.AppName)
	if err != nil {
		return err
	}

	if !running {
		return nil
	}

	logger.InfoKV(ctx, "Application is open, waiting for it to quit", "app", s.cfg.AppName)

	return common.PollWithBackoff(
		ctx,
		s.cfg.PollInterval,
		backoffCapMultiplier*s.cfg.PollInterval,
		s.cfg.WaitTimeout,
		func() (bool, error) {
			stillRunning, pollErr := s.inspector.IsProcessRunning(s.cfg.AppName)
			if pollErr != nil {
				return false, pollErr
			}

			return !stillRunning, nil
		})
}

// replaceBundle removes the installed bundle, copies the new one from the
// mounted volume with ditto, and verifies the post-condition.
func (s *service) replaceBundle(ctx context.Context) error {
	bundlePath := s.cfg.BundlePath()

	logger.InfoKV(ctx, "Replacing application bundle", "path", bundlePath)

	if err := os.RemoveAll(bundlePath); err != nil {
		return fmt.Errorf("remove previous bundle: %w", err)
	}

	source := filepath.Join(s.cfg.MountPoint, s.cfg.BundleName)
	if err := s.runner.Run(ctx, "ditto", source, bundlePath); err != nil {
		return fmt.Errorf("copy bundle: %w", err)
	}

	if _, err := os.Stat(bundlePath); err != nil {
		return fmt.Errorf("%s: %w", bundlePath, errBundleMissingAfterCopy)
	}

	return nil
}
