package main

import (
	"os"

	"github.com/lance13c/portalwatch/cmd"
)

var version = "dev"

func main() {
	cmd.SetVersion(version)
	os.Exit(cmd.Execute(os.Args[1:]))
}
