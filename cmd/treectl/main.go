// Command treectl is a command line client for the tree server.
package main

import (
	"os"

	"cleantree/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
