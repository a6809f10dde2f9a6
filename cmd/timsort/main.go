// Package main provides the timsort command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/king54346/timsort/cmd/timsort/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
