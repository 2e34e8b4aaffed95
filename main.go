package main

import "github.com/superzylo/vendo/cmd"

func main() {
	cmd.Execute()
}
