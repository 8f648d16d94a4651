package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are populated by the build process
var (
	// Version is the version of the build
	Version = "dev"
	// BuildTime is the time when the build was created
	BuildTime = "unknown"
)

// GetVersionInfo returns a formatted string with version information
func GetVersionInfo() string {
	return fmt.Sprintf("ChronoTrace %s (built: %s, %s, %s/%s)",
		GetVersion(),
		BuildTime,
		runtime.Version(),
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// GetVersion returns the linker-provided version, falling back to the
// module version when installed with go install
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// GetBuildTime returns the build timestamp
func GetBuildTime() string {
	return BuildTime
}
