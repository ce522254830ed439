package main

import (
	"os"

	"github.com/ziadkadry99/crystal-viewer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
