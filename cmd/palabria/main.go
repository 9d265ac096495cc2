// Command palabria records usage events and reports per-user activity.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/palabria/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
