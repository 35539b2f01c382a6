// Package main is the entry point for mcpkeys, the API key
// administration tool for mcpguard key stores.
package main

import (
	"context"
	"fmt"
	"os"
)

// Version information set at build time.
var version = "dev"

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
