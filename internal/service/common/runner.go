//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external commands. The install pipeline leans on system
// utilities (hdiutil, ditto, chown, softwareupdate), so everything that
// shells out goes through this interface and tests substitute a fake.
type Runner interface {
	// Run executes the command and waits for it to finish,
	// returning an error for a non-zero exit.
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// NewExecRunner returns the production command runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command, folding stderr into the returned error so log
// lines carry the utility's own diagnostics.
func (*ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
			return fmt.Errorf("%s: %w: %s", name, err, trimmed)
		}

		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}
