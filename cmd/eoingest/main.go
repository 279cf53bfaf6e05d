package main

import "github.com/eo-tools/eoingest/internal/cmd"

func main() {
	cmd.Execute()
}
