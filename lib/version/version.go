// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// These variables are set via -ldflags at build time.
var (
	GitCommit = ""
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// tracked lists the modules whose versions Full reports.
var tracked = []string{
	"github.com/fxamacker/cbor/v2",
	"github.com/zeebo/blake3",
	"filippo.io/age",
	"zombiezen.com/go/sqlite",
}

// Commit returns the injected commit, else the toolchain-recorded VCS
// revision (shortened, with "-dirty" when modified), else "unknown".
func Commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	return commitFromSettings(info.Settings)
}

func commitFromSettings(settings []debug.BuildSetting) string {
	revision, modified := "", false
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" {
		return "unknown"
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if modified {
		revision += "-dirty"
	}
	return revision
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit(), BuildTime)
}

// Full returns Info plus the Go version, platform and linked
// dependency versions.
func Full() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, line := range dependencyLines(info.Deps) {
			builder.WriteString("\n  ")
			builder.WriteString(line)
		}
	}
	return builder.String()
}

func dependencyLines(deps []*debug.Module) []string {
	var lines []string
	for _, path := range tracked {
		for _, dep := range deps {
			if dep.Path != path {
				continue
			}
			if dep.Replace != nil {
				dep = dep.Replace
			}
			lines = append(lines, fmt.Sprintf("%s: %s", path, dep.Version))
		}
	}
	return lines
}
