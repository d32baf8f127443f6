package main

// We structure the objstore command line tool as a single executable using
// the subcommand pattern, as is common for many cloud utilities. All of
// the interesting logic lives in pkg/; the cmd package only parses
// arguments and prints results.

import (
	"github.com/serverlessresearch/objstore/cmd"
)

func main() {
	cmd.Execute()
}
