package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	err := newRootCommand().Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		// the run command already explained how to resume
		return 130
	default:
		fmt.Fprintln(os.Stderr, "crucible:", err)
		return 1
	}
}
