// Package main is the entry point of the LexDraft API server and its
// maintenance commands.
package main

import (
	"os"
)

func main() {
	os.Exit(Run())
}
