// The main package for the yacrawler executable.
package main

import (
	"github.com/JakeFAU/yacrawler/cmd"
)

func main() {
	cmd.Execute()
}
