package main

import "github.com/secaudit/headgrade/cmd"

func main() {
	cmd.Execute()
}
