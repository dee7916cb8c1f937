// cmd/harness is the command-line interface to the AXI bus coordinator harness.
package main

import (
	"context"
	"os"

	"github.com/jvorob/cse502/internal/cli"
	"github.com/jvorob/cse502/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Run(),
	cmd.Inspect(),
}

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
