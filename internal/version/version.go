// Package version holds build metadata.
package version

// Stamped at build time via
// -ldflags "-X github.com/kailas-cloud/semdex/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
