// Package version carries build metadata set via ldflags.
package version

import "fmt"

var (
	// Version is the release tag, e.g. -ldflags "-X github.com/ManuGH/fractal/internal/version.Version=v1.2.0".
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the build info for --version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
