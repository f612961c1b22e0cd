package keyblock

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Launcher starts the helper process. Starting it is the first message of the helper
// contract; the helper then listens on the loopback port on its own schedule.
type Launcher struct {
	Path string
	Args []string
	Env  []string

	logger *slog.Logger
	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewLauncher prepares a launcher for the helper at path
func NewLauncher(path string, args []string, logger *slog.Logger) *Launcher {
	return &Launcher{
		Path:   path,
		Args:   args,
		logger: logger.With("component", "keyblock_launcher"),
	}
}

// Start spawns the helper. The process is killed when ctx is cancelled.
func (l *Launcher) Start(ctx context.Context) error {
	if l.Path == "" {
		return ErrNoHelperPath
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd != nil {
		return ErrLauncherRunning
	}

	cmd := exec.CommandContext(ctx, l.Path, l.Args...)
	if l.Env != nil {
		cmd.Env = l.Env
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	l.cmd = cmd
	l.exited = make(chan struct{})
	l.logger.Info("helper process started", "path", l.Path, "pid", cmd.Process.Pid)

	go func(exited chan struct{}) {
		err := cmd.Wait()
		l.logger.Info("helper process exited", "exit_code", cmd.ProcessState.ExitCode(), "error", err)
		close(exited)
	}(l.exited)

	return nil
}

// Exited is closed once the helper process has terminated; nil before Start
func (l *Launcher) Exited() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exited
}

// Stop kills the helper and waits for it to exit
func (l *Launcher) Stop() error {
	l.mu.Lock()
	cmd, exited := l.cmd, l.exited
	l.mu.Unlock()
	if cmd == nil {
		return nil
	}

	select {
	case <-exited:
		return nil
	default:
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-exited
	return nil
}
