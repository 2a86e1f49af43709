// Package config defines the YAML-backed deployment settings shared by all
// macdeploy commands: what to install, where from, where to, and how to treat
// a running instance of the target application. Validation fills macOS
// defaults so a minimal settings file only needs an app name and a URL.
package config
