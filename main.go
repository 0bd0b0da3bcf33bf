// The main package for the scrapper executable.
package main

import (
	"github.com/JakeFAU/scrapper/cmd"
)

func main() {
	cmd.Execute()
}
