package main

import (
	"os"

	"cookietrail/services/recorder/internal/cli"
)

var version = "dev"

func main() {
	// go-flags already reports parse and command errors.
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
