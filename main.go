// The main package for the tender-analyzer executable.
package main

import (
	"github.com/JakeFAU/tender-analyzer/cmd"
)

func main() {
	cmd.Execute()
}
