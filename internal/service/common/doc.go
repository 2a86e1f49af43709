// Package common provides the shared plumbing the deployment services are
// built on: an injectable external-command runner, process-table helpers,
// and bounded polling waits for external conditions.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
