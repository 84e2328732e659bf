package main

import (
	"os"

	"github.com/G-Research/eventhouse/cmd/eventhouse/cmd"
	"github.com/G-Research/eventhouse/internal/common/logging"
)

func main() {
	logging.ConfigureCommandLineLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
