package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time.
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Build describes the running kernel binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	GoVersion string `json:"goVersion"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Current returns the stamped build, completed from the vcs settings the
// go toolchain records.
func Current() Build {
	b := Build{Version: Version, Commit: GitCommit, BuildTime: BuildTime}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.GoVersion = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.BuildTime == "" {
				b.BuildTime = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	if len(b.Commit) > 7 {
		b.Commit = b.Commit[:7]
	}
	return b
}

// String renders the build as "version-commit[-dirty]".
func (b Build) String() string {
	s := b.Version
	if b.Commit != "" {
		s += "-" + b.Commit
	}
	if b.Dirty {
		s += "-dirty"
	}
	if b.BuildTime != "" {
		s = fmt.Sprintf("%s (built %s)", s, b.BuildTime)
	}
	return s
}
