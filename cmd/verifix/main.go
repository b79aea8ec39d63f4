package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/verifix/internal/app"
)

func main() {
	stdio := app.IO{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
	if err := app.Run(stdio, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
