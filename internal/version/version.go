package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name reported by the CLI and the API.
const Name = "framebus"

// Set via -ldflags "-X github.com/smazurov/framebus/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	Name      string `json:"name" example:"framebus" doc:"Program name"`
	Version   string `json:"version" example:"v0.3.0" doc:"Release version"`
	GitCommit string `json:"git_commit" doc:"Commit the binary was built from"`
	BuildDate string `json:"build_date" doc:"Build or commit time"`
	Modified  bool   `json:"modified" doc:"Whether the working tree had local changes"`
	GoVersion string `json:"go_version" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target OS and architecture"`
}

// Get returns build information. Values not set through ldflags fall back
// to the VCS stamp the Go toolchain embeds.
func Get() Info {
	info := Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildInfo(&info, bi)
	}
	return info
}

func applyBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String formats Info for --version output and the User-Agent header.
func (i Info) String() string {
	s := i.Name + " " + i.Version
	if i.GitCommit != "" {
		commit := i.GitCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if i.Modified {
			commit += "-dirty"
		}
		s += fmt.Sprintf(" (%s)", commit)
	}
	return s
}

// String returns the version line of the running binary.
func String() string {
	return Get().String()
}
