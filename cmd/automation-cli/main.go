package main

import "github.com/LENAX/automation-engine/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
