package main

import (
	"os"

	"github.com/gkobilansky/xgoat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
