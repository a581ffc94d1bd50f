// Package version reports the photobooth build.
package version

import "fmt"

// Version and Commit are set at build time via:
//
//	go build -ldflags "-X ...version.Version=0.2.0 -X ...version.Commit=abc123"
var (
	Version = "dev"
	Commit  = "dev"
)

// String formats the build for --version and the version command.
func String() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
