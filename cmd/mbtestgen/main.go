package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mbtestgen/mbtestgen/cmd/mbtestgen/commands"
	"github.com/mbtestgen/mbtestgen/cmd/mbtestgen/config"
	"github.com/mbtestgen/mbtestgen/pkg/generator"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := commands.NewRootCommand(Version, BuildTime, GitCommit)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitCode is 2 for usage and configuration errors and 1 for everything else
func exitCode(err error) int {
	if errors.Is(err, config.ErrInvalid) || errors.Is(err, generator.ErrInvalidRequest) {
		return 2
	}
	return 1
}
