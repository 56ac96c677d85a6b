package main

import cmd "github.com/webitel/datum-exporter/cmd/main"

func main() {
	cmd.Run()
}
