package main

import "github.com/supersquad/eventsweb/cmd/eventsweb/cmd"

func main() {
	cmd.Execute()
}
