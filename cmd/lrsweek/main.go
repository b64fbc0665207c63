// Command lrsweek exports weekly learner features from an xAPI LRS.
package main

import (
	"os"

	"github.com/roach88/lrsweek/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
