// Package main is the single-binary entrypoint for turnover: the API
// server and the operator CLI in one executable.
package main

import "github.com/propdesk/turnover/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
