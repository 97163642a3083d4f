package main

import "binhub/internal/cli"

func main() {
	cli.Execute()
}
