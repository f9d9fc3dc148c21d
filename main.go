package main

import (
	"os"

	"github.com/hookworks/hookrun/cli"
)

func main() {
	os.Exit(cli.RunApp(os.Args))
}
