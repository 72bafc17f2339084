package main

import (
	"os"

	"github.com/pterm/pterm"

	"github.com/David-Botos/schemadiff/cmd/schemadiff/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
