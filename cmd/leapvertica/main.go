// Package main provides the leapvertica CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapvertica/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
