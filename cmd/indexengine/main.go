// Package main provides the entry point for the indexengine CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang-index/cmd/indexengine/commands"
	"github.com/Sumatoshi-tech/codefang-index/pkg/version"
)

func main() {
	root := &cobra.Command{
		Use:     "indexengine",
		Short:   "Code-intelligence indexing engine",
		Long:    "indexengine ingests a source repository and maintains synchronised lexical, vector, symbol, fuzzy, and documentation indexes over it.",
		Version: version.Version,
	}

	root.AddCommand(
		commands.NewIndexCommand(),
		commands.NewSearchCommand(),
		commands.NewMCPCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
