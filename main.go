package main

import "dyntables/internal/cli"

func main() {
	cli.Execute()
}
