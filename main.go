// main.go
//
// Entry point of the clegans CLI; subcommands live in cmd/.

package main

import (
	"github.com/clegans/clegans/cmd"
)

func main() {
	cmd.Execute()
}
