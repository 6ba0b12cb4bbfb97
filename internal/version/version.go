// Package version carries the build's identity, stamped at release
// time via -ldflags -X on the variables below.
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String renders version, commit, and build time in one line.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
