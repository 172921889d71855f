package main

import (
	"os"

	"github.com/njyeung/netplay/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
