//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"os"
	"time"

	"github.com/mitchellh/go-ps"
)

// ProcessInspector answers questions about the OS process table.
// Tests substitute a fake so waits can be exercised without real processes.
type ProcessInspector interface {
	// IsProcessRunning reports whether a process with the given executable
	// name exists, excluding the current process.
	IsProcessRunning(name string) (bool, error)
	// TerminateProcessByName kills every process with the given executable
	// name, excluding the current process.
	TerminateProcessByName(name string) error
}

// PSInspector inspects the process table via mitchellh/go-ps.
type PSInspector struct{}

// NewPSInspector returns the production process inspector.
func NewPSInspector() *PSInspector {
	return &PSInspector{}
}

// IsProcessRunning reports whether a process with the provided executable name exists.
func (*PSInspector) IsProcessRunning(name string) (bool, error) {
	processList, err := ps.Processes()
	if err != nil {
		return false, err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == name {
			return true, nil
		}
	}

	return false, nil
}

// TerminateProcessByName tries to kill processes with the provided executable name.
func (*PSInspector) TerminateProcessByName(name string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != name {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}

// WaitUntilProcessExits polls the process table until no process with the
// provided name remains. A zero timeout waits indefinitely.
func WaitUntilProcessExits(
	ctx context.Context,
	inspector ProcessInspector,
	name string,
	interval, timeout time.Duration,
) error {
	return Poll(ctx, interval, timeout, func() (bool, error) {
		running, err := inspector.IsProcessRunning(name)
		if err != nil {
			return false, err
		}

		return !running, nil
	})
}
