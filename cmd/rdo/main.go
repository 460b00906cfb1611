// Command rdo validates model schemas, prints their DDL and runs data
// scenarios against SQLite.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rdo/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rdo:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
