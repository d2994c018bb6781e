package main

import (
	"os"

	"github.com/wenli/memekeeper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
