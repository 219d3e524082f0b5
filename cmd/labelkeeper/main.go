package main

import (
	"os"

	"github.com/solatis/labelkeeper/cmd/labelkeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
