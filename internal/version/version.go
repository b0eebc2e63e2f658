// Package version reports build metadata and the realtime protocol revision.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/supportim/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/supportim/internal/version.Commit=abc123
//	  -X github.com/soyeahso/supportim/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Protocol is the realtime frame protocol revision sent in the hello event.
const Protocol = 1

// Build is the JSON shape served by /api/version.
type Build struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Date     string `json:"date"`
	Protocol int    `json:"protocol"`
	Go       string `json:"go"`
}

// Current returns the running build.
func Current() Build {
	return Build{
		Name:     "supportim",
		Version:  Version,
		Commit:   short(Commit),
		Date:     Date,
		Protocol: Protocol,
		Go:       runtime.Version(),
	}
}

// Info returns a one-line description for the CLI.
func Info() string {
	return fmt.Sprintf("supportim %s (commit: %s, built: %s, protocol %d, %s/%s)",
		Version, short(Commit), Date, Protocol, runtime.GOOS, runtime.GOARCH)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
