package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	oldVersion, oldBuildTime := Version, BuildTime
	defer func() { Version, BuildTime = oldVersion, oldBuildTime }()

	Version = "1.2.3"
	BuildTime = "2024-05-01T10:00:00Z"

	info := GetVersionInfo()
	for _, want := range []string{"ChronoTrace 1.2.3", "2024-05-01T10:00:00Z", runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected %q in %q", want, info)
		}
	}
	if GetVersion() != "1.2.3" {
		t.Errorf("Expected linker version, got %q", GetVersion())
	}
	if GetBuildTime() != BuildTime {
		t.Errorf("Expected build time %q, got %q", BuildTime, GetBuildTime())
	}
}
