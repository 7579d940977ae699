// The main package for the parse-artifact-retriever executable.
package main

import (
	"github.com/JakeFAU/parse-artifact-retriever/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
