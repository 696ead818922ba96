// Package main is the entry point for bizctl, the bizdir operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/keyxmakerx/bizdir/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
