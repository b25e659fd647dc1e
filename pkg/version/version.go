// Package version holds build information injected at link time.
package version

import "fmt"

// Build information, set with ldflags:
//
//	go build -ldflags "-X contextcore/pkg/version.Version=v1.2.3" ./cmd/replayer
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version, or "dev" for development builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
