package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/iudanet/confsync/internal/client/cli"
	"github.com/iudanet/confsync/internal/client/iocli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	root := cli.NewRootCommand(viper.GetViper(), iocli.NewStdio(), cli.BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
