// Package main is the entry point for the lightcast-mcp server and CLI.
package main

import "github.com/lightcast-mcp/lightcast-mcp/internal/cli"

func main() {
	cli.Execute()
}
