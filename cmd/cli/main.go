// Package main is the entry point for the nlsql CLI binary.
package main

import (
	"os"

	"github.com/jmanoj0905/natural-language-sql/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
