// Package version provide information about the build version
package version

import (
	"runtime/debug"
)

// Version is the semantic version of impairctl.
// The value is set when building the binary
var Version = "" //nolint:gochecknoglobals

// Get returns the version set at build time or, if not set, the version of the
// main module in the build info. Returns "(devel)" if neither is known.
func Get() string {
	if Version != "" {
		return Version
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "(devel)"
	}

	return bi.Main.Version
}

// UserAgent returns the value of the User-Agent header sent to the engine
func UserAgent() string {
	return "impairctl/" + Get()
}
