package deployer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/macdeploy/internal/config"
	"github.com/oshokin/macdeploy/internal/repository/metadata"
	"github.com/oshokin/macdeploy/internal/service/download"
	"github.com/oshokin/macdeploy/internal/service/reporter"
)

const testStamp = "Mon, 01 Jan 2024 00:00:00 GMT"

// fakeRunner simulates the system utilities the installer shells out to.
// A ditto invocation creates the destination directory unless brokenCopy is
// set, mimicking a copy that silently produced nothing.
type fakeRunner struct {
	calls      [][]string
	brokenCopy bool
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))

	if name == "ditto" && !r.brokenCopy {
		return os.MkdirAll(args[len(args)-1], 0o755)
	}

	return nil
}

// commandNames flattens recorded invocations to their command names.
func (r *fakeRunner) commandNames() []string {
	names := make([]string, 0, len(r.calls))
	for _, call := range r.calls {
		names = append(names, call[0])
	}

	return names
}

// fakeInspector answers process-table questions from a per-name countdown.
type fakeInspector struct {
	runningChecks map[string]int
	killed        []string
}

func (f *fakeInspector) IsProcessRunning(name string) (bool, error) {
	if f.runningChecks[name] > 0 {
		f.runningChecks[name]--
		return true, nil
	}

	return false, nil
}

func (f *fakeInspector) TerminateProcessByName(name string) error {
	f.killed = append(f.killed, name)
	return nil
}

// recordingReporter captures phase transitions.
type recordingReporter struct {
	phases []reporter.Phase
}

func (r *recordingReporter) ReportPhase(_ context.Context, phase reporter.Phase) {
	r.phases = append(r.phases, phase)
}

// stubPrereq satisfies the prerequisite checker without touching the system.
type stubPrereq struct{}

func (stubPrereq) Ensure(context.Context) error {
	return nil
}

// testFixture bundles a fully faked service around a local HTTP server.
type testFixture struct {
	svc       *service
	cfg       *config.Config
	runner    *fakeRunner
	inspector *fakeInspector
	reporter  *recordingReporter
}

// newFixture wires a service against the provided handler with all external
// effects confined to a temp directory.
func newFixture(t *testing.T, handler http.Handler) *testFixture {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	root := t.TempDir()
	cfg := &config.Config{
		AppName:               "GIMP",
		DownloadURL:           server.URL + "/gimp.dmg",
		ApplicationsDirectory: filepath.Join(root, "Applications"),
		LogDirectory:          filepath.Join(root, "logs"),
		TempImagePath:         filepath.Join(root, "GIMP.dmg"),
		MountPoint:            filepath.Join(root, "mount"),
		PollInterval:          time.Millisecond,
		WaitTimeout:           time.Minute,
	}
	require.NoError(t, config.Validate(cfg))
	require.NoError(t, os.MkdirAll(cfg.ApplicationsDirectory, 0o755))

	runner := new(fakeRunner)
	inspector := &fakeInspector{runningChecks: map[string]int{}}
	rec := new(recordingReporter)

	svc := &service{
		cfg:        cfg,
		meta:       metadata.NewFileRepository(cfg.MetadataFile),
		downloader: download.NewClient(time.Second, 2, download.WithRetryDelay(time.Millisecond)),
		runner:     runner,
		inspector:  inspector,
		reporter:   rec,
		prereq:     stubPrereq{},
		markerPath: filepath.Join(root, markerFilename),
	}

	return &testFixture{svc: svc, cfg: cfg, runner: runner, inspector: inspector, reporter: rec}
}

// imageHandler serves the Last-Modified header on HEAD and image bytes on GET.
func imageHandler(stamp string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", stamp)

		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte("disk image bytes"))
		}
	})
}

// TestRun_NoopWhenMetadataMatches verifies equal timestamps cause no mutation.
func TestRun_NoopWhenMetadataMatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t, imageHandler(testStamp))
	require.NoError(t, os.MkdirAll(f.cfg.BundlePath(), 0o755))
	require.NoError(t, f.svc.meta.Save(context.Background(), testStamp))

	require.NoError(t, f.svc.run(context.Background()))

	// No system commands, no reports, no downloaded image.
	require.Empty(t, f.runner.calls)
	require.Empty(t, f.reporter.phases)

	_, err := os.Stat(f.cfg.TempImagePath)
	require.ErrorIs(t, err, os.ErrNotExist)

	stored, err := f.svc.meta.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, testStamp, stored)
}

// TestRun_FreshInstall verifies an absent bundle forces a full install and
// persists the fetched timestamp afterwards.
func TestRun_FreshInstall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, imageHandler(testStamp))

	require.NoError(t, f.svc.run(context.Background()))

	// Mount, copy, unmount, fix ownership.
	require.Equal(t, []string{"hdiutil", "ditto", "hdiutil", "chown"}, f.runner.commandNames())

	// Bundle present, temp image cleaned up.
	_, err := os.Stat(f.cfg.BundlePath())
	require.NoError(t, err)

	_, err = os.Stat(f.cfg.TempImagePath)
	require.ErrorIs(t, err, os.ErrNotExist)

	// Metadata holds the value fetched during this run.
	stored, err := f.svc.meta.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, testStamp, stored)

	require.Equal(t, []reporter.Phase{reporter.PhaseInstalling, reporter.PhaseInstalled}, f.reporter.phases)

	// Run marker is gone after cleanup.
	f.svc.cleanup(context.Background())

	_, err = os.Stat(f.svc.markerPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_UpdateWhenTimestampDiffers verifies a changed remote image triggers
// a reinstall even though the bundle exists.
func TestRun_UpdateWhenTimestampDiffers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, imageHandler(testStamp))
	require.NoError(t, os.MkdirAll(f.cfg.BundlePath(), 0o755))
	require.NoError(t, f.svc.meta.Save(context.Background(), "Sun, 31 Dec 2023 00:00:00 GMT"))

	require.NoError(t, f.svc.run(context.Background()))

	stored, err := f.svc.meta.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, testStamp, stored)
	require.Equal(t, []reporter.Phase{reporter.PhaseInstalling, reporter.PhaseInstalled}, f.reporter.phases)
}

// TestRun_FailedDownload verifies a transport failure is fatal and never
// advances the metadata.
func TestRun_FailedDownload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", testStamp)

		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	err := f.svc.run(context.Background())
	require.Error(t, err)

	// No metadata, no temp image, no install commands.
	_, err = f.svc.meta.Load(context.Background())
	require.ErrorIs(t, err, metadata.ErrNotFound)

	_, err = os.Stat(f.cfg.TempImagePath)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.Empty(t, f.runner.calls)
	require.Equal(t, []reporter.Phase{reporter.PhaseInstalling, reporter.PhaseFailed}, f.reporter.phases)
}

// TestRun_FailedVerification verifies a copy that produced no bundle is fatal
// and never advances the metadata.
func TestRun_FailedVerification(t *testing.T) {
	t.Parallel()

	f := newFixture(t, imageHandler(testStamp))
	f.runner.brokenCopy = true

	err := f.svc.run(context.Background())
	require.ErrorIs(t, err, errBundleMissingAfterCopy)

	_, err = f.svc.meta.Load(context.Background())
	require.ErrorIs(t, err, metadata.ErrNotFound)

	// Attach, failed copy, best-effort detach.
	require.Equal(t, []string{"hdiutil", "ditto", "hdiutil"}, f.runner.commandNames())
	require.Equal(t, []reporter.Phase{reporter.PhaseInstalling, reporter.PhaseFailed}, f.reporter.phases)
}

// TestRun_AlreadyRunning verifies a fresh run marker blocks a second instance.
func TestRun_AlreadyRunning(t *testing.T) {
	t.Parallel()

	f := newFixture(t, imageHandler(testStamp))
	require.NoError(t, os.WriteFile(f.svc.markerPath, nil, 0o644))

	err := f.svc.run(context.Background())
	require.ErrorIs(t, err, errDeployerAlreadyRunning)
	require.Empty(t, f.reporter.phases)
}

// TestInstall_TerminatePolicyKillsApplication verifies the terminate policy
// kills the running application instead of waiting for it.
func TestInstall_TerminatePolicyKillsApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t, imageHandler(testStamp))
	f.cfg.Termination = config.TerminationPolicyTerminate
	f.inspector.runningChecks["GIMP"] = 100

	require.NoError(t, f.svc.run(context.Background()))
	require.Equal(t, []string{"GIMP"}, f.inspector.killed)
}

// TestInstall_WaitPolicyOutlastsApplication verifies the wait policy polls
// until the application quits on its own.
func TestInstall_WaitPolicyOutlastsApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t, imageHandler(testStamp))
	f.inspector.runningChecks["GIMP"] = 3

	require.NoError(t, f.svc.run(context.Background()))
	require.Empty(t, f.inspector.killed)
	require.Zero(t, f.inspector.runningChecks["GIMP"])
}
