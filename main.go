package main

import (
	"os"

	"github.com/moby/sys/reexec"

	"github.com/signalnine/cardbench/cmd"
)

func main() {
	// Trial workers are this binary re-executed; they run their work and exit
	// here without reaching the CLI.
	if reexec.Init() {
		return
	}
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
