package main

import (
	"os"

	"github.com/frederikbeimgraben/mcssh/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
