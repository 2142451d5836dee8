package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/drivepilot-io/drivepilot/cmd/drivepilot-sim/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
