package main

import "driftfm/cmd"

func main() {
	cmd.Execute()
}
