package reporter

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/oshokin/macdeploy/internal/logger"
	"github.com/oshokin/macdeploy/internal/service/common"
)

// Phase is an install-phase state pushed to the monitoring agent.
type Phase string

const (
	// PhaseInstalling is reported right before the bundle is replaced.
	PhaseInstalling Phase = "installing"
	// PhaseInstalled is reported after a verified install.
	PhaseInstalled Phase = "installed"
	// PhaseFailed is reported when any fatal step fails.
	PhaseFailed Phase = "failed"
)

// Reporter pushes install-phase transitions to an external observer.
// Implementations must be best-effort: a reporting problem never fails a run.
type Reporter interface {
	ReportPhase(ctx context.Context, phase Phase)
}

// Noop discards every report. Used when no monitoring agent is configured.
type Noop struct{}

// ReportPhase does nothing.
func (Noop) ReportPhase(context.Context, Phase) {}

// AgentReporter invokes a third-party monitoring agent's notifier CLI with
// the fixed argument shape `monitor <item> --state <state>`. Reports are
// skipped silently when the agent binary is absent or its daemon is not
// running, so fleets without the agent see no errors in their logs.
type AgentReporter struct {
	// agentPath is the full path to the notifier binary.
	agentPath string
	// itemName is the per-application item shown by the agent.
	itemName string
	// runner executes the notifier.
	runner common.Runner
	// inspector checks whether the agent daemon is running.
	inspector common.ProcessInspector
}

// NewAgentReporter builds a reporter for the notifier binary at agentPath.
func NewAgentReporter(
	agentPath, itemName string,
	runner common.Runner,
	inspector common.ProcessInspector,
) *AgentReporter {
	return &AgentReporter{
		agentPath: agentPath,
		itemName:  itemName,
		runner:    runner,
		inspector: inspector,
	}
}

// ReportPhase pushes one phase transition to the agent.
// Every failure is logged at debug level and otherwise swallowed.
func (r *AgentReporter) ReportPhase(ctx context.Context, phase Phase) {
	if _, err := os.Stat(r.agentPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.DebugKV(ctx, "Monitoring agent not reachable", "error", err)
		}

		return
	}

	running, err := r.inspector.IsProcessRunning(filepath.Base(r.agentPath))
	if err != nil || !running {
		logger.DebugKV(ctx, "Monitoring agent not running, skipping report", "phase", phase)
		return
	}

	if err = r.runner.Run(ctx, r.agentPath, "monitor", r.itemName, "--state", string(phase)); err != nil {
		logger.WarnKV(ctx, "Failed to notify monitoring agent", "phase", phase, "error", err)
		return
	}

	logger.InfoKV(ctx, "Reported phase to monitoring agent", "phase", phase)
}
