package main

import "mctool/internal/cli/cmd"

func main() {
	cmd.Execute()
}
