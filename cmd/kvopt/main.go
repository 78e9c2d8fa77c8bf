package main

import (
	"os"

	"github.com/ElliotLearnsThings/KVOpt/internal/cli"
	"github.com/ElliotLearnsThings/KVOpt/internal/term"
)

func main() {
	cl := cli.NewCLI(os.Stdout, os.Stderr, os.Stdin, term.IsTerminal(os.Stderr))
	os.Exit(cl.Run(os.Args))
}
