package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Populated at build time via -ldflags, e.g.
//
//	-X github.com/tis24dev/notionsave/internal/version.Version=v0.3.0
var (
	// Version holds the semantic version of the binary.
	Version = "0.0.0-dev"

	// Commit holds the VCS commit hash used to build the binary (optional).
	Commit = ""

	// Date holds the build timestamp (optional).
	Date = ""
)

var readBuildInfo = debug.ReadBuildInfo

// String returns the effective version: the ldflags value, then the main
// module version from build info, then the development placeholder. A leading
// "v" is stripped.
func String() string {
	v := strings.TrimSpace(Version)

	if v == "" {
		if info, ok := readBuildInfo(); ok && info != nil {
			if mv := strings.TrimSpace(info.Main.Version); mv != "" && mv != "(devel)" {
				v = mv
			}
		}
	}

	if v == "" {
		v = "0.0.0-dev"
	}
	return strings.TrimPrefix(v, "v")
}

// Banner is the one-line identification printed by --version and at startup.
func Banner() string {
	b := fmt.Sprintf("notionsave %s", String())
	if c := strings.TrimSpace(Commit); c != "" {
		if len(c) > 7 {
			c = c[:7]
		}
		b += fmt.Sprintf(" (%s", c)
		if d := strings.TrimSpace(Date); d != "" {
			b += ", " + d
		}
		b += ")"
	}
	return b
}
