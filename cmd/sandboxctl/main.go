package main

import (
	"os"

	"judgebox/cmd/sandboxctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
