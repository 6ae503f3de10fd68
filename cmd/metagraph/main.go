package main

import (
	"os"

	"github.com/metagraph-dev/metagraph/internal/cli/commands"
)

// Version information - set at build time with
// -ldflags "-X main.Version=... -X main.GitCommit=... -X main.BuildDate=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	commands.Version = Version
	commands.GitCommit = GitCommit
	commands.BuildDate = BuildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
