package deployer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/macdeploy/internal/config"
	domain "github.com/oshokin/macdeploy/internal/domain/deploy"
	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/repository/metadata"
	"github.com/oshokin/macdeploy/internal/service/common"
	"github.com/oshokin/macdeploy/internal/service/download"
	"github.com/oshokin/macdeploy/internal/service/reporter"
)

// prerequisiteChecker verifies machine-level requirements before any
// installed state is touched.
type prerequisiteChecker interface {
	Ensure(ctx context.Context) error
}

// service holds the wiring and mutable state for a single deployment run.
// It is intentionally unexported, callers go through Run(ctx, Options).
type service struct {
	cfg        *config.Config      // Deployment configuration loaded from YAML.
	meta       metadata.Repository // Stored Last-Modified value from the previous install.
	downloader *download.Client    // HTTP transport with retries and connect timeout.
	runner     common.Runner       // Executes hdiutil, ditto, chown.
	inspector  common.ProcessInspector
	reporter   reporter.Reporter
	prereq     prerequisiteChecker

	// markerPath guards against parallel runs on the same machine.
	markerPath    string
	markerCreated bool
	// fetchedLastModified is the remote value observed by this run and
	// persisted only after a fully verified install.
	fetchedLastModified string
}

// run executes the deployment workflow:
// 1) Guard against a parallel run via the marker file.
// 2) Ensure the translation layer prerequisite.
// 3) Decide fresh-install / update / no-op from remote vs stored metadata.
// 4) Serialize against sibling instances, then download the image.
// 5) Replace the bundle, verify, fix ownership, persist metadata.
// Status transitions are pushed to the monitoring agent as a side channel.
func (s *service) run(ctx context.Context) error {
	if isDeployerRunningNow(ctx, s.markerPath, s.inspector) {
		return errDeployerAlreadyRunning
	}

	runMarker, err := os.Create(s.markerPath)
	if err != nil {
		return fmt.Errorf("create run marker: %w", err)
	}

	if err = runMarker.Close(); err != nil {
		return err
	}

	s.markerCreated = true

	logger.Info(ctx, "Checking machine prerequisites")

	if err = s.prereq.Ensure(ctx); err != nil {
		return fmt.Errorf("ensure prerequisites: %w", err)
	}

	outcome, err := s.decide(ctx)
	if err != nil {
		return err
	}

	if !outcome.NeedsInstall() {
		logger.InfoKV(ctx, "Application is already up to date", "app", s.cfg.AppName)
		return nil
	}

	if err = s.deploy(ctx, outcome); err != nil {
		s.reporter.ReportPhase(ctx, reporter.PhaseFailed)
		return err
	}

	return nil
}

// decide compares the freshly fetched Last-Modified value against the stored
// one and produces the install decision. A failed header fetch is logged and
// treated as an empty value, so an unreadable remote forces a reinstall
// rather than aborting the run.
func (s *service) decide(ctx context.Context) (domain.Outcome, error) {
	bundleInstalled := true
	if _, err := os.Stat(s.cfg.BundlePath()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return domain.OutcomeNoop, fmt.Errorf("check installed bundle: %w", err)
		}

		bundleInstalled = false
	}

	logger.InfoKV(ctx, "Fetching remote image metadata", "url", s.cfg.DownloadURL)

	fetched, err := s.downloader.FetchLastModified(ctx, s.cfg.DownloadURL)
	if err != nil {
		logger.WarnKV(ctx, "Unable to fetch remote metadata, proceeding with empty value", "error", err)

		fetched = ""
	}

	s.fetchedLastModified = fetched

	storedFound := true

	stored, err := s.meta.Load(ctx)
	if errors.Is(err, metadata.ErrNotFound) {
		storedFound = false
	} else if err != nil {
		return domain.OutcomeNoop, fmt.Errorf("load stored metadata: %w", err)
	}

	outcome := domain.Decide(bundleInstalled, storedFound, stored, fetched)

	logger.InfoKV(ctx, "Update decision made",
		"outcome", outcome.String(),
		"stored", stored,
		"fetched", fetched,
		"bundle_installed", bundleInstalled)

	return outcome, nil
}

// deploy downloads the image and replaces the installed bundle.
// The stored metadata is only advanced after the install has been verified.
func (s *service) deploy(ctx context.Context, outcome domain.Outcome) error {
	logger.InfoKV(ctx, "Deployment required", "app", s.cfg.AppName, "outcome", outcome.String())

	if err := s.waitForSiblingDeployers(ctx); err != nil {
		return fmt.Errorf("wait for sibling deployers: %w", err)
	}

	s.reporter.ReportPhase(ctx, reporter.PhaseInstalling)

	logger.InfoKV(ctx, "Downloading disk image", "url", s.cfg.DownloadURL, "path", s.cfg.TempImagePath)

	if err := s.downloader.Fetch(ctx, s.cfg.DownloadURL, s.cfg.TempImagePath); err != nil {
		return fmt.Errorf("download disk image: %w", err)
	}

	if err := s.install(ctx); err != nil {
		return err
	}

	if err := s.meta.Save(ctx, s.fetchedLastModified); err != nil {
		return fmt.Errorf("persist update metadata: %w", err)
	}

	s.reporter.ReportPhase(ctx, reporter.PhaseInstalled)

	logger.InfoKV(ctx, "Deployment completed", "app", s.cfg.AppName)

	return nil
}

// waitForSiblingDeployers polls until no other deployer process is visible in
// the process table. Downloads are heavyweight; two instances pulling the
// same image concurrently would double the bandwidth cost for nothing.
func (s *service) waitForSiblingDeployers(ctx context.Context) error {
	return common.WaitUntilProcessExits(
		ctx, s.inspector, ownExecutableName(), s.cfg.PollInterval, s.cfg.WaitTimeout)
}

// cleanup removes the run marker.
func (s *service) cleanup(ctx context.Context) {
	if s.markerCreated {
		if _, err := os.Stat(s.markerPath); err == nil {
			_ = os.Remove(s.markerPath)
		}
	}

	logger.Info(ctx, "The deployer has been stopped")
}
