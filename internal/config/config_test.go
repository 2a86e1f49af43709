package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations for the settings.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing app name.
	cfg := new(Config)

	err := Validate(cfg)
	require.ErrorIs(t, err, errAppNameRequired)

	// Missing URL.
	cfg = &Config{AppName: "GIMP"}

	err = Validate(cfg)
	require.ErrorIs(t, err, errDownloadURLRequired)

	// Bad URL.
	cfg = &Config{
		AppName:     "GIMP",
		DownloadURL: "not a url",
	}

	err = Validate(cfg)
	require.Error(t, err)

	// Unknown termination policy.
	cfg = &Config{
		AppName:     "GIMP",
		DownloadURL: "https://downloads.example.com/gimp.dmg",
		Termination: "ask-nicely",
	}

	err = Validate(cfg)
	require.ErrorIs(t, err, errUnknownTerminationPolicy)
}

// TestValidateDefaults ensures optional fields are filled with macOS defaults.
func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		AppName:     "GIMP",
		DownloadURL: "https://downloads.example.com/gimp.dmg",
	}

	require.NoError(t, Validate(cfg))
	require.Equal(t, "GIMP.app", cfg.BundleName)
	require.Equal(t, DefaultApplicationsDirectory, cfg.ApplicationsDirectory)
	require.Equal(t, DefaultLogDirectory, cfg.LogDirectory)
	require.Equal(t, filepath.Join(DefaultLogDirectory, "GIMP.lastmodified"), cfg.MetadataFile)
	require.Equal(t, filepath.Join(os.TempDir(), "GIMP.dmg"), cfg.TempImagePath)
	require.Equal(t, DefaultMountPoint, cfg.MountPoint)
	require.Equal(t, TerminationPolicyWait, cfg.Termination)
	require.Equal(t, DefaultBundleOwner, cfg.BundleOwner)
	require.Equal(t, DefaultDownloadRetries, cfg.DownloadRetries)
	require.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)

	require.Equal(t, filepath.Join(DefaultApplicationsDirectory, "GIMP.app"), cfg.BundlePath())
	require.Equal(t, filepath.Join(DefaultLogDirectory, "GIMP.log"), cfg.LogFile())
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		AppName:      "GIMP",
		DownloadURL:  "https://downloads.example.com/gimp.dmg",
		Termination:  TerminationPolicyTerminate,
		UpdateFolder: "https://updates.local/macdeploy/",
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.AppName, loaded.AppName)
	require.Equal(t, cfg.DownloadURL, loaded.DownloadURL)
	require.Equal(t, TerminationPolicyTerminate, loaded.Termination)
	require.Equal(t, cfg.UpdateFolder, loaded.UpdateFolder)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}
