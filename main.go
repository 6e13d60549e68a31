// The main package for the tenderwatch executable.
package main

import (
	"github.com/JakeFAU/tenderwatch/cmd"
)

func main() {
	cmd.Execute()
}
