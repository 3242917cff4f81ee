// fbxgrab - send downloads to your Freebox
package main

import (
	"fmt"
	"os"

	"github.com/hardcoding/fbxgrab/internal/cli"
)

// Version information, overridable via LDFLAGS at release time.
var (
	Version   = "v0.4.0"
	BuildTime = "2026-08-28"
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
