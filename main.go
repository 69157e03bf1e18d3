package main

import "hipixel/cmd"

func main() {
	cmd.Execute()
}
