// Package version holds the build version of browserdb.
package version

// Version is overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/browserdb/internal/version.Version=...".
var Version = "0.1.0"

// Module is the Go module path.
const Module = "github.com/mesh-intelligence/browserdb"

// String returns the version prefixed for display.
func String() string { return "v" + Version }
