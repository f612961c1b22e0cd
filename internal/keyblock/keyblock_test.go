package keyblock

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHook struct {
	mu    sync.Mutex
	calls []Command
	fail  error
}

func (h *recordingHook) Block() error   { return h.record(Block) }
func (h *recordingHook) Unblock() error { return h.record(Unblock) }

func (h *recordingHook) record(cmd Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, cmd)
	return h.fail
}

func (h *recordingHook) Calls() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Command(nil), h.calls...)
}

// syncBuffer lets slog write from bridge goroutines while the test reads
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&syncBuffer{}, nil))
}

func startListener(t *testing.T, hook Hook) *Listener {
	t.Helper()
	l := NewListener("127.0.0.1:0", hook, quietLogger())
	require.NoError(t, l.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return l
}

// settle returns once the listener has handled every connection accepted before this one.
// The listener closes a connection only after applying it, and it handles them in order.
func settle(t *testing.T, l *Listener) {
	t.Helper()
	conn, err := net.Dial("tcp", l.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("SYNC"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadAll(conn)
	require.NoError(t, err)
}

// unusedAddr returns a loopback address nothing listens on
func unusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("BLOCK")
	require.NoError(t, err)
	assert.Equal(t, Block, cmd)

	cmd, err = ParseCommand("UNBLOCK")
	require.NoError(t, err)
	assert.Equal(t, Unblock, cmd)

	_, err = ParseCommand("block")
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestNewBridge_Defaults(t *testing.T) {
	b := NewBridge("", 0, quietLogger())
	assert.Equal(t, "127.0.0.1:6741", b.addr)
	assert.Equal(t, 2*time.Second, b.timeout)
}

func TestBridge_DeliversToListener(t *testing.T) {
	hook := &recordingHook{}
	l := startListener(t, hook)

	bridge := NewBridge(l.Addr(), time.Second, quietLogger())
	bridge.Send(Block)
	bridge.Wait()

	require.Eventually(t, l.Blocked, time.Second, 5*time.Millisecond)

	bridge.Send(Unblock)
	bridge.Wait()

	require.Eventually(t, func() bool { return len(hook.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Command{Block, Unblock}, hook.Calls())
	assert.False(t, l.Blocked())
}

func TestBridge_RepeatedCommandsAreHarmless(t *testing.T) {
	hook := &recordingHook{}
	l := startListener(t, hook)

	bridge := NewBridge(l.Addr(), time.Second, quietLogger())
	bridge.Send(Block)
	bridge.Wait()
	bridge.Send(Block)
	bridge.Wait()

	require.Eventually(t, func() bool { return len(hook.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, l.Blocked())
}

func TestBridge_RapidTogglingEndsUnblocked(t *testing.T) {
	hook := &recordingHook{}
	l := startListener(t, hook)
	bridge := NewBridge(l.Addr(), time.Second, quietLogger())

	for i := 0; i < 300; i++ {
		bridge.Send(Block)
		bridge.Send(Unblock)
	}
	bridge.Wait()
	settle(t, l)

	calls := hook.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, Unblock, calls[len(calls)-1])
	assert.False(t, l.Blocked(), "helper must follow the last command sent")
}

func TestBridge_DeliversInIssueOrder(t *testing.T) {
	hook := &recordingHook{}
	l := startListener(t, hook)
	bridge := NewBridge(l.Addr(), time.Second, quietLogger())

	for round := 0; round < 50; round++ {
		bridge.Send(Unblock)
		bridge.Send(Block)
		bridge.Wait()
		settle(t, l)
		require.True(t, l.Blocked(), "round %d", round)

		bridge.Send(Block)
		bridge.Send(Unblock)
		bridge.Wait()
		settle(t, l)
		require.False(t, l.Blocked(), "round %d", round)
	}
}

func TestBridge_UnreachableHelperIsLoggedNotReturned(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	bridge := NewBridge(unusedAddr(t), 200*time.Millisecond, logger)

	start := time.Now()
	bridge.Send(Block)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "Send must not wait for delivery")

	bridge.Wait()
	assert.Contains(t, logs.String(), "helper command not delivered")
	assert.Contains(t, logs.String(), "command=BLOCK")
}

func TestListener_IgnoresUnknownFrames(t *testing.T) {
	hook := &recordingHook{}
	l := startListener(t, hook)

	conn, err := net.Dial("tcp", l.Addr())
	require.NoError(t, err)
	_, err = conn.Write([]byte("SHUTDOWN"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// A valid command afterwards proves the listener is still serving
	bridge := NewBridge(l.Addr(), time.Second, quietLogger())
	bridge.Send(Block)
	bridge.Wait()

	require.Eventually(t, func() bool { return len(hook.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Command{Block}, hook.Calls())
}

func TestListener_TrimsTrailingNewline(t *testing.T) {
	hook := &recordingHook{}
	l := startListener(t, hook)

	conn, err := net.Dial("tcp", l.Addr())
	require.NoError(t, err)
	_, err = conn.Write([]byte("BLOCK\r\n"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, l.Blocked, time.Second, 5*time.Millisecond)
}

func TestListener_HookFailureStillTracksState(t *testing.T) {
	hook := &recordingHook{fail: errors.New("hook unavailable")}
	l := startListener(t, hook)

	bridge := NewBridge(l.Addr(), time.Second, quietLogger())
	bridge.Send(Block)
	bridge.Wait()

	require.Eventually(t, l.Blocked, time.Second, 5*time.Millisecond)
}

func TestListener_LifecycleErrors(t *testing.T) {
	l := NewListener("127.0.0.1:0", &recordingHook{}, quietLogger())
	assert.ErrorIs(t, l.Serve(context.Background()), ErrListenerNotBound)
	assert.NoError(t, l.Close())

	require.NoError(t, l.Listen())
	assert.ErrorIs(t, l.Listen(), ErrListenerRunning)
	assert.NotEqual(t, "127.0.0.1:0", l.Addr())
	assert.NoError(t, l.Close())
}

func TestListener_CloseEndsServe(t *testing.T) {
	l := NewListener("127.0.0.1:0", &recordingHook{}, quietLogger())
	require.NoError(t, l.Listen())

	done := make(chan error, 1)
	go func() { done <- l.Serve(context.Background()) }()

	require.NoError(t, l.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

// TestHelperProcess is not a real test; the launcher tests exec it as the helper
func TestHelperProcess(t *testing.T) {
	if os.Getenv("KEYBLOCK_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("KEYBLOCK_HELPER_MODE") == "exit" {
		os.Exit(0)
	}
	time.Sleep(time.Minute)
	os.Exit(0)
}

func helperLauncher(mode string) *Launcher {
	l := NewLauncher(os.Args[0], []string{"-test.run=TestHelperProcess"}, quietLogger())
	l.Env = append(os.Environ(), "KEYBLOCK_WANT_HELPER_PROCESS=1", "KEYBLOCK_HELPER_MODE="+mode)
	return l
}

func TestLauncher_StartAndStop(t *testing.T) {
	l := helperLauncher("sleep")
	require.NoError(t, l.Start(context.Background()))
	assert.ErrorIs(t, l.Start(context.Background()), ErrLauncherRunning)

	require.NoError(t, l.Stop())
	select {
	case <-l.Exited():
	default:
		t.Fatal("Exited should be closed after Stop")
	}
}

func TestLauncher_ObservesExit(t *testing.T) {
	l := helperLauncher("exit")
	require.NoError(t, l.Start(context.Background()))

	select {
	case <-l.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("helper exit not observed")
	}
	assert.NoError(t, l.Stop())
}

func TestLauncher_RequiresPath(t *testing.T) {
	l := NewLauncher("", nil, quietLogger())
	assert.ErrorIs(t, l.Start(context.Background()), ErrNoHelperPath)
	assert.Nil(t, l.Exited())
	assert.NoError(t, l.Stop())
}

func TestLogHook(t *testing.T) {
	logs := &syncBuffer{}
	hook := LogHook{Logger: slog.New(slog.NewTextHandler(logs, nil))}
	require.NoError(t, hook.Block())
	require.NoError(t, hook.Unblock())
	assert.True(t, strings.Contains(logs.String(), "engaged"))
	assert.True(t, strings.Contains(logs.String(), "released"))
}
