package main

import (
	"log/slog"
	"os"

	"github.com/meko-christian/mail-courier/cmd"
)

func main() {
	// Fallback handler so anything logged before the CLI installs the
	// configured one is structured too.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := cmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
