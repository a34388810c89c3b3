package main

import "github.com/agentflux/fluxdiff/cli"

func main() {
	cli.Execute()
}
