// Package rosetta verifies the presence of Apple's translation layer on
// arm64 machines and installs it non-interactively when missing, waiting out
// any competing softwareupdate run first.
package rosetta
