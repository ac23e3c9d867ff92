// Command annostore serves and manipulates a versioned annotation store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/annostore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
