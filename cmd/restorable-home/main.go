package main

import (
	"errors"
	"os"

	"restorable.io/restorable-home/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, cmd.ErrRestoreFailed) || errors.Is(err, cmd.ErrInvalidSignature) {
			os.Exit(1)
		}
		os.Exit(3) // CLI/config error
	}
}
