// The main package for the watcher executable.
package main

import (
	"github.com/JakeFAU/release-notes-watcher/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
