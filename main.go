// The main package for the jobharvest executable.
package main

import (
	"github.com/ksaito/jobharvest/cmd"
)

func main() {
	cmd.Execute()
}
