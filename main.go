// The main package for the linkcheck executable.
package main

import (
	"github.com/JakeFAU/linkcheck/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
