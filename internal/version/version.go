// Package version reports build metadata set through -ldflags, falling back
// to what the Go toolchain embedded in the binary.
package version

import (
	"fmt"
	"runtime/debug"
)

const AppName = "linnemanlabs-welcome"

// set with -ldflags "-X .../internal/version.Version=..."
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildID    string
)

type Info struct {
	App        string `json:"app"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	BuildID    string `json:"build_id,omitempty"`
	GoVersion  string `json:"go_version"`
	// nil when the binary carries no vcs.modified setting
	VCSDirty *bool `json:"vcs_dirty,omitempty"`
}

// Get merges the ldflags values with debug.ReadBuildInfo. Values set at link
// time win.
func Get() Info {
	info := Info{
		App:        AppName,
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildID:    BuildID,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		merge(&info, bi)
	}
	return info
}

func merge(info *Info, bi *debug.BuildInfo) {
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.CommitDate == "" {
				info.CommitDate = s.Value
			}
		case "vcs.modified":
			dirty := s.Value == "true"
			info.VCSDirty = &dirty
		}
	}
}

func (i Info) String() string {
	s := fmt.Sprintf("%s %s (commit %s, %s)", i.App, i.Version, short(i.Commit), i.GoVersion)
	if i.VCSDirty != nil && *i.VCSDirty {
		s += " dirty"
	}
	return s
}

func short(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
