// Package version carries build metadata injected with -ldflags.
package version

import (
	"fmt"
	"io"
	"runtime"
)

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// String is the one-line form used in logs and the User-Agent.
func String() string {
	return fmt.Sprintf("vaultguard/%s (%s)", Version, Commit)
}

// Write prints the multi-line form shown by the version command.
func Write(w io.Writer) {
	fmt.Fprintf(w, "version: %s\ncommit: %s\nbuilt: %s\ngo: %s\n", Version, Commit, BuildDate, runtime.Version())
}
