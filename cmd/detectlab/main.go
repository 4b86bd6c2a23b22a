package main

import (
	"os"

	"github.com/tmoreaux/detectlab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
