package main

import "example.com/wordweave/services/event/cmd"

func main() {
	cmd.Execute()
}
