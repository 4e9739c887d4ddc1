package main

import "github.com/devicelab-dev/anchor-runner/pkg/cli"

func main() {
	cli.Execute()
}
