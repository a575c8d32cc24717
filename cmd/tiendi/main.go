package main

import (
	"os"

	"github.com/tiendi/tiendi/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
