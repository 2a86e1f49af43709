package deployer

import (
	"context"
	"fmt"

	"github.com/oshokin/macdeploy/internal/config"
	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/repository/metadata"
	"github.com/oshokin/macdeploy/internal/service/common"
	"github.com/oshokin/macdeploy/internal/service/download"
	"github.com/oshokin/macdeploy/internal/service/reporter"
	"github.com/oshokin/macdeploy/internal/service/rosetta"
)

// Options are inputs accepted by the deployer entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// ForceTerminate overrides the configured termination policy so the
	// running application is killed instead of waited for.
	ForceTerminate bool
}

// Run executes the deployment lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.ForceTerminate {
		cfg.Termination = config.TerminationPolicyTerminate
	}

	// Attach the teed logger to the context before naming it, otherwise the
	// derived logger keeps writing to the console only and the run leaves no
	// narrative on disk. A broken log sink degrades to console-only output
	// instead of failing an otherwise healthy deployment.
	if teeLogger, teeErr := logger.NewTee(nil, cfg.LogFile()); teeErr == nil {
		ctx = logger.ToContext(ctx, teeLogger)
	} else {
		logger.WarnKV(ctx, "Unable to open log file, logging to console only", "error", teeErr)
	}

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "macdeploy")

	svc := newService(cfg)

	defer svc.cleanup(ctx)

	if err = svc.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Deployment failed", "app", cfg.AppName, "error", err)
		return err
	}

	return nil
}

// newService wires production dependencies for a single deployment run.
func newService(cfg *config.Config) *service {
	runner := common.NewExecRunner()
	inspector := common.NewPSInspector()

	var statusReporter reporter.Reporter = reporter.Noop{}
	if cfg.MonitorAgentPath != "" {
		statusReporter = reporter.NewAgentReporter(cfg.MonitorAgentPath, cfg.AppName, runner, inspector)
	}

	return &service{
		cfg:        cfg,
		meta:       metadata.NewFileRepository(cfg.MetadataFile),
		downloader: download.NewClient(cfg.ConnectTimeout, cfg.DownloadRetries),
		runner:     runner,
		inspector:  inspector,
		reporter:   statusReporter,
		prereq:     rosetta.NewChecker(runner, inspector, cfg.PollInterval, cfg.WaitTimeout),
		markerPath: defaultMarkerPath(),
	}
}
