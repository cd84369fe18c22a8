package main

import "github.com/rathrio/log-slurping/internal/cmd"

func main() {
	cmd.Execute()
}
