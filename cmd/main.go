package main

import (
	"errors"
	"fmt"
	"os"

	cmd "github.com/yourusername/cloudcity/cmd/commands"
)

func main() {
	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrGateFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
