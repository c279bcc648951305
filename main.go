package main

import "mockyard/cmd"

func main() {
	cmd.Execute()
}
