package main

import "github.com/williamsharkey/nimbus/internal/cmd"

func main() {
	cmd.Execute()
}
