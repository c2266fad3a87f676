package main

import (
	"os"

	"github.com/zot/conductor/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
