package main

import "github.com/felixgeelhaar/intelart/cmd/intelart/cli"

func main() {
	cli.Execute()
}
