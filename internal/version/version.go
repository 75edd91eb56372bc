// Package version provides application version and build info.
//
//nolint:revive
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// Version is the current version of the application.
	// It can be overridden by ldflags at build time.
	Version = "dev"
	// CommitHash is the git commit hash at build time.
	CommitHash = ""
	// BuildTime is the time when the application was built.
	BuildTime = ""

	readBuild sync.Once
)

func fillFromBuildInfo() {
	readBuild.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	})
}

// GetInfo returns a formatted version string including the version and short commit hash.
func GetInfo() string {
	fillFromBuildInfo()
	res := Version
	if CommitHash != "" {
		res += fmt.Sprintf(" (%s)", shortHash(CommitHash))
	}
	return res
}

// UserAgent is sent on every request to the chat backend.
func UserAgent() string {
	fillFromBuildInfo()
	if CommitHash == "" {
		return "chatgate/" + Version
	}
	return fmt.Sprintf("chatgate/%s+%s", Version, shortHash(CommitHash))
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
