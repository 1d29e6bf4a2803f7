package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Anvoria/alumnet/internal/cli"
	"github.com/Anvoria/alumnet/internal/cli/admin"
	"github.com/Anvoria/alumnet/internal/cli/keys"
	"github.com/Anvoria/alumnet/internal/cli/session"
)

func main() {
	// keep library logs out of the command output
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	registry := cli.NewRegistry()

	registry.Register(&keys.Command{})
	registry.Register(&admin.Command{})
	registry.Register(&session.Command{})

	if err := registry.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
