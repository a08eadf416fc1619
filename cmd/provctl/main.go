package main

import (
	"os"

	"github.com/medrex/record-provenance/cmd/provctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
