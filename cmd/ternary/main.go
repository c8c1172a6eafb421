// Command ternary scores, decides, reduces, flags and explains ternary
// signals from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}
