// Package main provides the entry point for the hybridsearchd CLI.
package main

import (
	"os"

	"github.com/cerplabs/hybridsearch/cmd/hybridsearchd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
