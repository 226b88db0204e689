// The main package for the tabharvester executable.
package main

import (
	"github.com/JakeFAU/tab-harvester/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
