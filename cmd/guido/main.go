package main

import (
	"os"

	"github.com/fsalinas26/Guido/cmd/guido/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
