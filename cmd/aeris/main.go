package main

import "github.com/ogulcanaydogan/aeris/internal/cli"

func main() {
	cli.Execute()
}
