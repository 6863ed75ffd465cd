// Command qdsl renders and runs query documents against entity metadata.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/qdsl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
