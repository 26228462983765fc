// Package version holds build information, set with -ldflags -X.
package version

var (
	Version   = "0.1.0"
	BuildTime = "unknown" // UTC
	GitCommit = "unknown"
)
