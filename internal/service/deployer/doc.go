// Package deployer drives the unattended install/update pipeline for a
// DMG-distributed macOS application.
//
// A run guards itself with a marker file, ensures the Rosetta prerequisite,
// decides fresh-install/update/no-op from HTTP Last-Modified metadata,
// downloads the image with bounded retries, replaces the application bundle
// wholesale, and records the new metadata only after the install has been
// verified. Phase transitions are pushed best-effort to an optional
// monitoring agent.
package deployer
