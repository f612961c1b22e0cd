// Command keyblocker is the keyboard helper's control side: it listens on the loopback port
// for BLOCK and UNBLOCK and drives the keyboard hook.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"classlock/internal/keyblock"
	"classlock/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("keyblocker", flag.ContinueOnError)
	addr := fs.String("addr", keyblock.DefaultAddr, "loopback address to listen on")
	level := fs.String("log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := logging.NewLogger(logging.LoggerConfig{Format: "text", Level: logging.ParseLevel(*level)})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener := keyblock.NewListener(*addr, keyblock.LogHook{Logger: logger}, logger)
	if err := listener.Listen(); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return listener.Serve(ctx)
}
