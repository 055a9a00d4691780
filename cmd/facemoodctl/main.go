package main

import "github.com/ent0n29/facemood/internal/cli"

func main() {
	cli.Execute()
}
