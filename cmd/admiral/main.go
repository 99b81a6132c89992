package main

import "github.com/mrtazz/admiral/internal/cli"

func main() {
	cli.Execute()
}
