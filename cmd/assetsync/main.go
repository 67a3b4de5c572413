// Command assetsync keeps a local cache of a web app's static assets in
// step with the app's build manifest.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/assetsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "assetsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
