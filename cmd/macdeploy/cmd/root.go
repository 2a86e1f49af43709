package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/macdeploy/internal/config"
	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/service/deployer"
	"github.com/oshokin/macdeploy/internal/service/publisher"
	"github.com/oshokin/macdeploy/internal/service/selfupdate"
	"github.com/oshokin/macdeploy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// forceTerminate kills a running instance of the target application
	// instead of waiting for it to quit.
	forceTerminate bool

	// logLevel is the minimum level for log output.
	logLevel string

	// rootCmd represents the base command that installs or updates the managed application.
	rootCmd = &cobra.Command{
		Use:   "macdeploy",
		Short: "Unattended install/update of a DMG-distributed macOS application",
		Args:  cobra.NoArgs,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// Apply the log level after flags have been parsed.
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := newSignalContext()
			defer stop()

			options := &deployer.Options{
				ConfigPath:     configPath,
				ForceTerminate: forceTerminate,
			}

			return deployer.Run(ctx, options)
		},
	}

	// selfUpdateCmd updates the macdeploy binary itself from the update folder.
	selfUpdateCmd = &cobra.Command{
		Use:   "selfupdate",
		Short: "Update the macdeploy binary from the configured update folder",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := newSignalContext()
			defer stop()

			return selfupdate.Run(ctx, &selfupdate.Options{ConfigPath: configPath})
		},
	}

	// publishBinaryPath is the built binary described by the release manifest.
	publishBinaryPath string

	// publishOutputPath is where the release manifest is written.
	publishOutputPath string

	// publishCmd writes the release manifest consumed by selfupdate.
	publishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Write the release manifest for a freshly built binary",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := newSignalContext()
			defer stop()

			options := &publisher.Options{
				ConfigPath: configPath,
				BinaryPath: publishBinaryPath,
				OutputPath: publishOutputPath,
			}

			return publisher.Run(ctx, options)
		},
	}
)

// newSignalContext returns a context canceled by SIGTERM/SIGINT for graceful shutdown.
func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// Execute runs the macdeploy CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(selfUpdateCmd, publishCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(
		&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "minimum log level (debug|info|warn|error)")
	rootCmd.Flags().BoolVar(
		&forceTerminate, "kill", false, "terminate a running instance of the application instead of waiting")
	publishCmd.Flags().StringVar(
		&publishBinaryPath, "binary", "", "path to the built binary (defaults to ./macdeploy)")
	publishCmd.Flags().StringVar(
		&publishOutputPath, "output", "", "path for the release manifest (defaults to the standard filename)")
}
