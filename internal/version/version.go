package version

import "fmt"

// Build metadata, stamped through -ldflags at release time. The defaults
// below are what a plain `go build` produces.
var (
	// Version is the semantic version of the binary.
	Version = "1.0.0"
	// Commit is the short git SHA the binary was built from.
	Commit = "none"
	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Short returns only the semantic version. The release manifest records this
// value, so its format must stay in sync with the publish command.
func Short() string {
	return Version
}

// Full returns a human-readable line with version, commit and build time.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}
