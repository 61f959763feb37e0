package main

import (
	"os"

	"bitwise74/media-api/cmd/mediactl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
