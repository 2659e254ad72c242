// Package version reports the build version of the partnerlens binaries.
package version

import "runtime/debug"

var version = "dev"

// Version returns the build string embedded via -ldflags when available.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		return info.Main.Version
	}
	return version
}

// Set assigns the version reported when the binary carries no module version.
func Set(v string) {
	if v != "" {
		version = v
	}
}

// Revision returns the short VCS revision stamped into the build, with a
// "-dirty" suffix for modified trees, or "" when none was recorded.
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

// String combines Version and Revision for logs and health output.
func String() string {
	if rev := Revision(); rev != "" {
		return Version() + " (" + rev + ")"
	}
	return Version()
}
