// Package main is the single-binary entrypoint for expenzez.
package main

import "github.com/biszaal/expenzez-sub007/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
