// ABOUTME: Entry point for the deltakey CLI
// ABOUTME: All commands live in the commands package
package main

import (
	"os"

	"github.com/nainya/deltakey/cmd/deltakey/commands"
)

func main() {
	os.Exit(commands.Execute())
}
