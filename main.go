package main

import "tterm/cmd"

func main() {
	cmd.Execute()
}
