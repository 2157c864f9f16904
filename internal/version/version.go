// Package version reports the docqa build, stamped by the linker:
//
//	go build -ldflags "-X github.com/kailas-cloud/docqa/internal/version.Version=v0.1.0"
package version

import "fmt"

//nolint:revive // Overwritten with -ldflags -X.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String is the one-line form shown by docqa --version.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
