// Package misc keeps build information.
package misc

import (
	"runtime/debug"
)

// Set with -ldflags "-X cfinav/misc.version=... -X cfinav/misc.gitHash=...".
var (
	appName = "cfinav"
	version = "dev"
	gitHash = ""
)

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

// GetGitHash returns commit program was built from. When it was not set at
// link time VCS information recorded by the go tool is used.
func GetGitHash() string {
	if gitHash != "" {
		return gitHash
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
