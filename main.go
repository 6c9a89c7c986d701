package main

import (
	"os"

	"github.com/Archerevan-01fischb/MW-website/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
