// Package main is the single-binary entrypoint for chunkmesh: the
// tracker, the peer daemon, and the client commands in one executable.
package main

import "github.com/chunkmesh-network/chunkmesh/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
