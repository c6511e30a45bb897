// Package main provides the annotator CLI: annotate games with two engines
// through a shared evaluation cache, and manage that cache.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
