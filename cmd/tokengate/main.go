// Command tokengate runs the authenticating, rate-limiting gateway and its
// development helpers.
package main

import (
	"fmt"
	"os"
)

// Version information set via ldflags during build:
//
//	go build -ldflags="-X main.version=1.0.0 -X main.gitCommit=abc123 -X main.buildTime=2026-01-01"
var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
