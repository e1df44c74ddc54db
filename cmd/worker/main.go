package main

import (
	"log/slog"
	"os"

	"github.com/sakif/lineval/internal/isolate"
)

func main() {
	// stdout carries the protocol; everything else goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := isolate.Serve(os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("worker terminated", "error", err)
		os.Exit(1)
	}
}
