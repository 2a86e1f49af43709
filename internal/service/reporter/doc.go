// Package reporter pushes install-phase status to an optional fleet
// monitoring agent. Reporting is strictly best-effort: absence of the agent,
// a stopped daemon, or a failing notifier never affects the deployment run.
package reporter
