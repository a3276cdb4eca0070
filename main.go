package main

import (
	"os"

	"github.com/igvedmak/parkspeak/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
