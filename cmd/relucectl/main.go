package main

import (
	"os"

	"github.com/reluceapp/reluce/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
