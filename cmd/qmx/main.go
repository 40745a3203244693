// Package main is the entry point for the qmx CLI.
package main

import (
	"os"

	"github.com/tobil/qmx/cmd/qmx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
