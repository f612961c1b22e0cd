// Command classlock-student joins a class as a student and enforces the teacher's lock on a
// headless window, driving the keyboard helper over loopback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classlock/internal/client"
	"classlock/internal/focus"
	"classlock/internal/keyblock"
	"classlock/internal/lockdown"
	"classlock/internal/logging"
	"classlock/internal/student"
	"classlock/pkg/types"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// logObserver reports lock and focus changes the way a UI would display them
type logObserver struct {
	logger *slog.Logger
}

func (o logObserver) LockChanged(locked bool) {
	o.logger.Info("lock state changed", "locked", locked)
}

func (o logObserver) FocusChanged(ev focus.Event) {
	o.logger.Warn("focus changed while locked", "event", string(ev))
}

func run(args []string) error {
	fs := flag.NewFlagSet("classlock-student", flag.ContinueOnError)
	envPath := fs.String("env", ".env", "dotenv file loaded before the environment is read")
	relayURL := fs.String("relay", "", "relay WebSocket URL (overrides CLASSLOCK_STUDENT_RELAY_URL)")
	code := fs.String("code", "", "class code (overrides CLASSLOCK_STUDENT_CLASS_CODE)")
	name := fs.String("name", "", "display name (overrides CLASSLOCK_STUDENT_NAME)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := student.LoadConfig(*envPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *relayURL != "" {
		cfg.RelayURL = *relayURL
	}
	if *code != "" {
		cfg.ClassCode = *code
	}
	if *name != "" {
		cfg.StudentName = *name
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.LogFormat,
		Level:  logging.ParseLevel(cfg.LogLevel),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// STEP 1: Helper process, if this agent owns it
	if cfg.HelperPath != "" {
		launcher := keyblock.NewLauncher(cfg.HelperPath, nil, logger)
		if err := launcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start helper: %w", err)
		}
		defer func() { _ = launcher.Stop() }()
	}

	// STEP 2: Window, bridge and controller
	window := lockdown.NewHeadlessWindow(lockdown.Bounds{Width: 1200, Height: 800}, lockdown.ViewStudent)
	bridge := keyblock.NewBridge(cfg.HelperAddr, cfg.HelperTimeout, logger)
	controller := lockdown.NewController(window, bridge, logObserver{logger: logger}, logger)
	controller.SetAllowedNavigation(cfg.AllowedNavigation)
	window.OnSignal(controller.HandleSignal)
	window.OnNavigate(controller.HandleNavigate)

	// FUNCTIONAL DISCOVERY: Whatever ends the session, the helper must not be left blocking input
	defer func() {
		controller.Unlock()
		bridge.Wait()
	}()

	// STEP 3: Relay connection and join
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	relay, err := client.Dial(dialCtx, cfg.RelayURL, logger)
	cancel()
	if err != nil {
		return err
	}
	defer relay.Close()

	agent := student.NewAgent(relay, controller, logger)
	agent.Passthrough = func(cmd types.Command) {
		logger.Info("teacher command", "type", cmd.Type, "command", string(cmd.Raw))
	}

	joinCtx, cancelJoin := context.WithTimeout(ctx, 10*time.Second)
	_, err = agent.Join(joinCtx, cfg.ClassCode, cfg.StudentName)
	cancelJoin()
	if err != nil {
		return err
	}

	// STEP 4: Follow the teacher until the class ends or we are interrupted
	err = agent.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, student.ErrTeacherDisconnected):
		logger.Info("session finished", "reason", err)
		return nil
	default:
		return err
	}
}
