package boot

import "runtime"

// BuildInfo restores the build-metadata log line original_source/os/
// kernel/src/boot.rs emits once the heap is up (git ref, rustc
// version, build profile). The distilled contract dropped this; it
// costs nothing the core's non-goals exclude and is a real feature of
// the reference kernel, so it is carried over in Go-native form:
// GoVersion comes from runtime.Version(); CurrentBuildInfo copies
// GitCommit/GitRef from the package variables below, which
// "go build -ldflags -X" can set and which default to "unknown".
type BuildInfo struct {
	ModuleVersion string
	GoVersion     string
	GitCommit     string
	GitRef        string
}

// GitCommit and GitRef are populated via -ldflags -X at build time;
// left as "unknown" for ordinary `go build`/`go test` invocations.
var (
	GitCommit = "unknown"
	GitRef    = "unknown"
)

// CurrentBuildInfo captures the running binary's build metadata.
func CurrentBuildInfo(moduleVersion string) BuildInfo {
	return BuildInfo{
		ModuleVersion: moduleVersion,
		GoVersion:     runtime.Version(),
		GitCommit:     GitCommit,
		GitRef:        GitRef,
	}
}

func (b BuildInfo) String() string {
	return "hhutos " + b.ModuleVersion + " (" + b.GoVersion + ", " + b.GitRef + "@" + b.GitCommit + ")"
}
