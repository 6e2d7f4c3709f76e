package main

import "github.com/andrejsstepanovs/architect/cmd"

func main() {
	cmd.Execute()
}
