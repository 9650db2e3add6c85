// Package version carries build metadata stamped in with -ldflags -X.
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// String formats the build metadata as one line.
func String() string {
	return fmt.Sprintf("glitch-audit %s (%s, built %s)", Version, GitSHA, BuildTime)
}
