package main

import (
	"errors"
	"fmt"
	"os"

	"cswitch/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
