// Command bindex builds, inspects, queries, and serves BIND inverted index
// files.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/bindex/cmd/bindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
