package main

import (
	"fmt"
	"os"

	"coffeenet/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "coffeenet:", err)
		os.Exit(1)
	}
}
