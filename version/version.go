// Package version exposes build metadata for the lsmux binary.
//
// Version is the only value that must be injected at build time (via
// -ldflags); commit and build time are recovered from the VCS stamps the Go
// linker embeds, so plain `go build` produces a useful version string too.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version of the binary, set via ldflags on tagged
// builds. It also pins which backend versions the registry accepts.
var Version = "dev"

// Info is a snapshot of the binary's build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get assembles build metadata from Version and the embedded VCS stamps.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    "unknown",
		BuildTime: "unknown",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.time":
			info.BuildTime = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String renders a one-line human-readable version.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("lsmux %s (commit %s, built %s)", i.Version, commit, i.BuildTime)
}

// Short returns an abbreviated commit hash for log fields.
func (i Info) Short() string {
	if len(i.Commit) >= 7 {
		return i.Commit[:7]
	}
	return i.Commit
}
