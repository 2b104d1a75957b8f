package main

import "github.com/MosesMendoza/packaging-cli/cmd"

func main() {
	cmd.Execute()
}
