// Package main implements the impairctl command line tool
package main

import (
	"fmt"
	"os"

	"github.com/impairlab/impairctl/cmd/impairctl/commands"
	"github.com/impairlab/impairctl/pkg/runtime"
)

func main() {
	env := runtime.DefaultEnvironment()

	rootCmd := commands.BuildRootCmd(env)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
