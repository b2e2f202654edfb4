// Command scanfold merges nmap scan reports into a persistent host inventory.
package main

import (
	"github.com/anstrom/scanfold/cmd/cli"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
