// Package version reports the build version of basecamp.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/pixeltube/basecamp/internal/version.Version=v0.4.0 \
//	                   -X github.com/pixeltube/basecamp/internal/version.Commit=abc1234"
var (
	Version = ""
	Commit  = ""
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		fill(info)
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fill takes missing values from the module and VCS build info
func fill(info *debug.BuildInfo) {
	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	if Commit != "" {
		return
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	Commit = revision
	if dirty {
		Commit += "-dirty"
	}
}

// Short returns the version without the commit, as advertised over mDNS
func Short() string {
	return strings.TrimPrefix(Version, "v")
}

// Full returns the version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
