package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"classlock/internal/app"
	"classlock/internal/client"
	"classlock/internal/config"
	"classlock/internal/logging"
	"classlock/pkg/types"
)

const (
	adminToken   = "integration-token"
	eventTimeout = 3 * time.Second
)

// relayServer is a full relay bound to an ephemeral loopback port
type relayServer struct {
	app *app.Application
}

func startRelay(t *testing.T) *relayServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Journal.Driver = config.JournalDriverSQLite
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.API.Token = adminToken

	application, err := app.NewApplication(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create relay: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start relay: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Logf("relay stop: %v", err)
		}
	})
	return &relayServer{app: application}
}

func (r *relayServer) wsURL() string {
	return "ws://" + r.app.Addr() + "/ws"
}

func (r *relayServer) dial(t *testing.T) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	c, err := client.Dial(ctx, r.wsURL(), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to dial relay: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// adminGet decodes an authenticated admin API response into v and returns the status code
func (r *relayServer) adminGet(t *testing.T, path string, v interface{}) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://"+r.app.Addr()+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := (&http.Client{Timeout: eventTimeout}).Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("GET %s returned invalid JSON: %v", path, err)
		}
	}
	return resp.StatusCode
}

// waitEvent skips frames until one named event arrives
func waitEvent(t *testing.T, c *client.Client, event string) types.Envelope {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case env, ok := <-c.Events():
			if !ok {
				t.Fatalf("connection closed while waiting for %s", event)
			}
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

// expectSilence fails if c receives any frame within d
func expectSilence(t *testing.T, c *client.Client, d time.Duration) {
	t.Helper()
	select {
	case env := <-c.Events():
		t.Fatalf("unexpected %s frame: %s", env.Event, env.Data)
	case <-time.After(d):
	}
}

func decode[T any](t *testing.T, env types.Envelope) T {
	t.Helper()
	var v T
	if err := env.Decode(&v); err != nil {
		t.Fatalf("failed to decode %s: %v", env.Event, err)
	}
	return v
}

func createClass(t *testing.T, teacher *client.Client, code string) types.ClassCreatedEvent {
	t.Helper()
	if err := teacher.Emit(types.EventCreateClass, types.CreateClassRequest{ClassCode: code, TeacherName: "Ms. Rivera"}); err != nil {
		t.Fatal(err)
	}
	return decode[types.ClassCreatedEvent](t, waitEvent(t, teacher, types.EventClassCreated))
}

func joinClass(t *testing.T, student *client.Client, code, name string) types.JoinSuccessEvent {
	t.Helper()
	if err := student.Emit(types.EventJoinClass, types.JoinClassRequest{ClassCode: code, StudentName: name}); err != nil {
		t.Fatal(err)
	}
	return decode[types.JoinSuccessEvent](t, waitEvent(t, student, types.EventJoinSuccess))
}

func validate(t *testing.T, c *client.Client, code string) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	ok, err := c.ValidateClassCode(ctx, code)
	if err != nil {
		t.Fatalf("validate-class-code failed: %v", err)
	}
	return ok
}

// freeLoopbackAddr returns an address nothing is listening on yet
func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}
