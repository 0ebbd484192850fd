package main

import (
	"os"

	"github.com/solatis/varextract/cmd/varextract/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
