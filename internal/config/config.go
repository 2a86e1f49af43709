package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// TerminationPolicy controls how a running instance of the target
// application is handled before its bundle is replaced.
type TerminationPolicy string

const (
	// TerminationPolicyWait polls until the application quits on its own.
	TerminationPolicyWait TerminationPolicy = "wait"
	// TerminationPolicyTerminate kills the application immediately.
	TerminationPolicyTerminate TerminationPolicy = "terminate"
)

// Config holds the deployment parameters for a single managed application.
// It replaces ad-hoc per-machine settings with one reviewable YAML file that
// the device-management agent ships alongside the binary.
type Config struct {
	// AppName is the display name of the managed application (e.g. "GIMP").
	// It is also the process name waited on before the bundle is replaced
	// and the item name pushed to the monitoring agent.
	AppName string `yaml:"app_name"`
	// BundleName is the application bundle directory name (e.g. "GIMP.app").
	BundleName string `yaml:"bundle_name"`
	// DownloadURL points at the DMG to install.
	DownloadURL string `yaml:"download_url"`
	// ApplicationsDirectory is where the bundle is installed.
	ApplicationsDirectory string `yaml:"applications_dir"`
	// LogDirectory receives the run log and, by default, the metadata file.
	LogDirectory string `yaml:"log_dir"`
	// MetadataFile stores the Last-Modified value of the most recent
	// successful install. Empty means "<log_dir>/<app_name>.lastmodified".
	MetadataFile string `yaml:"metadata_file"`
	// TempImagePath is where the DMG is downloaded before mounting.
	TempImagePath string `yaml:"temp_image_path"`
	// MountPoint is the fixed mountpoint used for hdiutil attach.
	MountPoint string `yaml:"mount_point"`
	// Termination selects the running-application policy (wait | terminate).
	Termination TerminationPolicy `yaml:"termination_policy"`
	// BundleOwner is passed to chown -R after the copy (e.g. "root:admin").
	BundleOwner string `yaml:"bundle_owner"`
	// DownloadRetries bounds transfer attempts before the run fails.
	DownloadRetries int `yaml:"download_retries"`
	// ConnectTimeout caps connection establishment for HTTP requests.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// PollInterval is the base delay between re-checks of external
	// conditions (competing deployers, softwareupdate, the running app).
	PollInterval time.Duration `yaml:"poll_interval"`
	// WaitTimeout bounds those polling waits. Zero keeps the original
	// unbounded behavior; the agent is then responsible for killing us.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	// MonitorAgentPath is the optional monitoring agent notifier binary.
	// Empty disables status reporting entirely.
	MonitorAgentPath string `yaml:"monitor_agent_path"`
	// UpdateFolder is the URL hosting macdeploy's own release manifest,
	// used by the selfupdate and publish commands.
	UpdateFolder string `yaml:"update_folder"`
}

const (
	// DefaultConfigFilename is the default filename for deployment settings.
	DefaultConfigFilename = "macdeploy-settings.yaml"

	// DefaultApplicationsDirectory is the standard macOS install location.
	DefaultApplicationsDirectory = "/Applications"

	// DefaultLogDirectory receives logs and metadata for unattended runs.
	DefaultLogDirectory = "/Library/Logs/macdeploy"

	// DefaultMountPoint is the fixed mountpoint for the downloaded image.
	DefaultMountPoint = "/Volumes/macdeploy-image"

	// DefaultBundleOwner matches Finder-installed applications.
	DefaultBundleOwner = "root:admin"

	// DefaultDownloadRetries bounds transfer attempts.
	DefaultDownloadRetries = 3

	// DefaultConnectTimeout is the default connection establishment cap.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultPollInterval is the default delay between condition re-checks.
	DefaultPollInterval = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errAppNameRequired is returned when the application name is missing.
	errAppNameRequired = errors.New("application name must be provided")
	// errDownloadURLRequired is returned when the download URL is missing.
	errDownloadURLRequired = errors.New("download URL must be provided")
	// errUnknownTerminationPolicy is returned for policies other than wait/terminate.
	errUnknownTerminationPolicy = errors.New("termination policy must be \"wait\" or \"terminate\"")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling defaults for everything optional.
//
//nolint:cyclop // A flat list of field checks reads better than helper soup.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.AppName == "" {
		return errAppNameRequired
	}

	if cfg.DownloadURL == "" {
		return errDownloadURLRequired
	}

	if _, err := url.ParseRequestURI(cfg.DownloadURL); err != nil {
		return fmt.Errorf("invalid download URL: %w", err)
	}

	switch cfg.Termination {
	case TerminationPolicyWait, TerminationPolicyTerminate:
	case "":
		cfg.Termination = TerminationPolicyWait
	default:
		return fmt.Errorf("%q: %w", cfg.Termination, errUnknownTerminationPolicy)
	}

	if cfg.BundleName == "" {
		cfg.BundleName = cfg.AppName + ".app"
	}

	if cfg.ApplicationsDirectory == "" {
		cfg.ApplicationsDirectory = DefaultApplicationsDirectory
	}

	if cfg.LogDirectory == "" {
		cfg.LogDirectory = DefaultLogDirectory
	}

	if cfg.MetadataFile == "" {
		cfg.MetadataFile = filepath.Join(cfg.LogDirectory, cfg.AppName+".lastmodified")
	}

	if cfg.TempImagePath == "" {
		cfg.TempImagePath = filepath.Join(os.TempDir(), cfg.AppName+".dmg")
	}

	if cfg.MountPoint == "" {
		cfg.MountPoint = DefaultMountPoint
	}

	if cfg.BundleOwner == "" {
		cfg.BundleOwner = DefaultBundleOwner
	}

	if cfg.DownloadRetries <= 0 {
		cfg.DownloadRetries = DefaultDownloadRetries
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.UpdateFolder == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(cfg.UpdateFolder); err != nil {
		return fmt.Errorf("invalid update folder URI: %w", err)
	}

	return nil
}

// BundlePath returns the full installed path of the application bundle.
func (c *Config) BundlePath() string {
	return filepath.Join(c.ApplicationsDirectory, c.BundleName)
}

// LogFile returns the full path of the run log.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDirectory, c.AppName+".log")
}
