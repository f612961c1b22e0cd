package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"classlock/internal/api"
	"classlock/internal/keyblock"
	"classlock/internal/lockdown"
	"classlock/internal/logging"
	"classlock/internal/student"
	"classlock/pkg/types"
)

// TestClassroom_TeacherLeavesEndsClass: a student joins, the teacher sees the roster,
// and once the teacher disconnects the student is told and the code no longer validates
func TestClassroom_TeacherLeavesEndsClass(t *testing.T) {
	relay := startRelay(t)
	teacher := relay.dial(t)
	alice := relay.dial(t)
	observer := relay.dial(t)

	created := createClass(t, teacher, "AB12")
	if created.Session.TeacherName != "Ms. Rivera" {
		t.Errorf("Expected teacher name in session, got %q", created.Session.TeacherName)
	}

	if !validate(t, alice, "AB12") {
		t.Fatal("AB12 should validate while its teacher is connected")
	}

	joined := joinClass(t, alice, "AB12", "Alice")
	if locked, _ := joined.Settings.Locked(); !locked {
		t.Error("New sessions start locked")
	}

	t.Run("TeacherSeesJoin", func(t *testing.T) {
		ev := decode[types.StudentJoinedEvent](t, waitEvent(t, teacher, types.EventStudentJoined))
		if ev.TotalStudents != 1 {
			t.Errorf("Expected totalStudents=1, got %d", ev.TotalStudents)
		}
		if ev.Student.Name != "Alice" || len(ev.AllStudents) != 1 {
			t.Errorf("Unexpected roster: %+v", ev)
		}
	})

	t.Run("TeacherDisconnect", func(t *testing.T) {
		if err := teacher.Close(); err != nil {
			t.Fatal(err)
		}
		waitEvent(t, alice, types.EventTeacherDisconnected)

		if validate(t, observer, "AB12") {
			t.Error("AB12 must not validate after its teacher disconnected")
		}
	})

	t.Run("JoinAfterEnd", func(t *testing.T) {
		late := relay.dial(t)
		if err := late.Emit(types.EventJoinClass, types.JoinClassRequest{ClassCode: "AB12", StudentName: "Bo"}); err != nil {
			t.Fatal(err)
		}
		ev := decode[types.ErrorEvent](t, waitEvent(t, late, types.EventJoinError))
		if ev.Message != "Invalid class code or class does not exist" {
			t.Errorf("Unexpected join error %q", ev.Message)
		}
	})
}

// TestClassroom_LockWithoutHelper: the keyboard helper is not listening when the lock
// arrives, yet the window locks; once the helper is up the next lock reaches it
func TestClassroom_LockWithoutHelper(t *testing.T) {
	relay := startRelay(t)
	teacher := relay.dial(t)
	createClass(t, teacher, "LAB7")

	helperAddr := freeLoopbackAddr(t)
	logger := logging.Discard()

	window := lockdown.NewHeadlessWindow(lockdown.Bounds{X: 10, Y: 10, Width: 1200, Height: 800}, lockdown.ViewStudent)
	bridge := keyblock.NewBridge(helperAddr, 200*time.Millisecond, logger)
	controller := lockdown.NewController(window, bridge, nil, logger)
	window.OnSignal(controller.HandleSignal)

	agent := student.NewAgent(relay.dial(t), controller, logger)
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if _, err := agent.Join(ctx, "LAB7", "Alice"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- agent.Run(runCtx) }()
	defer func() {
		stopRun()
		<-runDone
	}()

	// default settings lock on join; the BLOCK attempt fails quietly
	bridge.Wait()
	if controller.Mode() != lockdown.ModeLocked {
		t.Fatalf("Expected LOCKED after join, got %s", controller.Mode())
	}
	if !window.IsFullScreen() || !window.IsAlwaysOnTop() {
		t.Error("Window must be fullscreen and pinned even without the helper")
	}
	if controller.ClassCode() != "LAB7" {
		t.Errorf("Expected stored class code LAB7, got %q", controller.ClassCode())
	}

	helper := keyblock.NewListener(helperAddr, keyblock.LogHook{Logger: logger}, logger)
	if err := helper.Listen(); err != nil {
		t.Fatalf("helper listen: %v", err)
	}
	helperCtx, stopHelper := context.WithCancel(context.Background())
	defer stopHelper()
	go func() { _ = helper.Serve(helperCtx) }()

	broadcast := func(cmdType string) {
		t.Helper()
		if err := teacher.Emit(types.EventBroadcastToStudents, map[string]string{"type": cmdType}); err != nil {
			t.Fatal(err)
		}
	}
	eventually := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(eventTimeout)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", what)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	broadcast(types.CommandLock)
	eventually("helper BLOCK", helper.Blocked)

	if controller.HandleCloseRequest() {
		t.Error("Close must be vetoed while locked")
	}

	broadcast(types.CommandUnlock)
	eventually("helper UNBLOCK", func() bool { return !helper.Blocked() })
	eventually("window unlock", func() bool { return controller.Mode() == lockdown.ModeUnlocked })

	if window.IsFullScreen() || window.IsAlwaysOnTop() {
		t.Error("Unlock must restore the pre-lock window flags")
	}
	if b, _ := window.Bounds(); b != (lockdown.Bounds{X: 10, Y: 10, Width: 1200, Height: 800}) {
		t.Errorf("Unlock must restore bounds, got %+v", b)
	}
}

// TestClassroom_SettingsMerge: a partial settings update keeps unrelated keys and
// reaches every current student
func TestClassroom_SettingsMerge(t *testing.T) {
	relay := startRelay(t)
	teacher := relay.dial(t)
	createClass(t, teacher, "MATH3")

	alice := relay.dial(t)
	bob := relay.dial(t)
	carl := relay.dial(t)
	joinClass(t, alice, "MATH3", "Ana")
	joinClass(t, bob, "MATH3", "Ben")
	joinClass(t, carl, "MATH3", "Cy")

	// Cy leaves before the update and must not receive it
	if err := carl.Emit(types.EventLeaveClass, nil); err != nil {
		t.Fatal(err)
	}
	left := decode[types.StudentLeftEvent](t, waitEvent(t, teacher, types.EventStudentLeft))
	if left.TotalStudents != 2 {
		t.Fatalf("Expected 2 students after leave, got %d", left.TotalStudents)
	}

	if err := teacher.Emit(types.EventUpdateSettings, map[string]interface{}{"allowedFeatures": []string{"graph"}}); err != nil {
		t.Fatal(err)
	}

	for _, c := range []struct {
		name string
		env  types.Envelope
	}{
		{"Ana", waitEvent(t, alice, types.EventSettingsUpdated)},
		{"Ben", waitEvent(t, bob, types.EventSettingsUpdated)},
	} {
		settings, err := types.ParseSettings(c.env.Data)
		if err != nil {
			t.Fatalf("%s got invalid settings: %v", c.name, err)
		}
		if locked, ok := settings.Locked(); !ok || !locked {
			t.Errorf("%s: merge dropped the locked flag: %s", c.name, c.env.Data)
		}
		if got := settings.AllowedFeatures(); len(got) != 1 || got[0] != "graph" {
			t.Errorf("%s: expected allowedFeatures [graph], got %v", c.name, got)
		}
	}
	expectSilence(t, carl, 200*time.Millisecond)

	var session api.SessionResponse
	if code := relay.adminGet(t, "/api/sessions/MATH3", &session); code != 200 {
		t.Fatalf("Expected 200 from session endpoint, got %d", code)
	}
	if features := session.Session.Settings.AllowedFeatures(); len(features) != 1 {
		t.Errorf("Session settings not merged: %v", session.Session.Settings)
	}
	if len(session.Session.Students) != 2 {
		t.Errorf("Expected 2 students in session, got %d", len(session.Session.Students))
	}
}

// TestClassroom_UnicastAndRoster checks targeted commands and roster queries
func TestClassroom_UnicastAndRoster(t *testing.T) {
	relay := startRelay(t)
	teacher := relay.dial(t)
	createClass(t, teacher, "HIST1")

	ana := relay.dial(t)
	ben := relay.dial(t)
	joinClass(t, ana, "HIST1", "Ana")
	joinClass(t, ben, "HIST1", "Ben")
	waitEvent(t, teacher, types.EventStudentJoined)
	joined := decode[types.StudentJoinedEvent](t, waitEvent(t, teacher, types.EventStudentJoined))

	if err := teacher.Emit(types.EventGetStudents, nil); err != nil {
		t.Fatal(err)
	}
	list := decode[types.StudentListEvent](t, waitEvent(t, teacher, types.EventStudentList))
	if len(list.Students) != 2 || list.Students[0].Name != "Ana" || list.Students[1].Name != "Ben" {
		t.Fatalf("Roster out of order or incomplete: %+v", list.Students)
	}

	benID := joined.Student.ID
	if err := teacher.Emit(types.EventSendToStudent, types.SendToStudentRequest{
		StudentID: benID,
		Command:   json.RawMessage(`{"type":"show-graph","fn":"x^2"}`),
	}); err != nil {
		t.Fatal(err)
	}

	cmd := waitEvent(t, ben, types.EventTeacherCommand)
	var payload map[string]string
	if err := json.Unmarshal(cmd.Data, &payload); err != nil || payload["fn"] != "x^2" {
		t.Errorf("Command not forwarded verbatim: %s", cmd.Data)
	}
	expectSilence(t, ana, 200*time.Millisecond)

	// a student cannot broadcast
	if err := ana.Emit(types.EventBroadcastToStudents, map[string]string{"type": "unlock"}); err != nil {
		t.Fatal(err)
	}
	expectSilence(t, ben, 200*time.Millisecond)
}

// TestClassroom_Journal checks the audit trail served by the admin API
func TestClassroom_Journal(t *testing.T) {
	relay := startRelay(t)
	teacher := relay.dial(t)
	createClass(t, teacher, "SCI2")

	ana := relay.dial(t)
	joinClass(t, ana, "SCI2", "Ana")
	waitEvent(t, teacher, types.EventStudentJoined)

	if err := teacher.Emit(types.EventBroadcastToStudents, map[string]string{"type": "lock"}); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, ana, types.EventTeacherCommand)

	want := []string{types.JournalSessionCreated, types.JournalStudentJoined, types.JournalBroadcast}
	deadline := time.Now().Add(eventTimeout)
	for {
		var resp api.JournalResponse
		if code := relay.adminGet(t, "/api/sessions/SCI2/journal", &resp); code != 200 {
			t.Fatalf("Expected 200 from journal endpoint, got %d", code)
		}
		if len(resp.Entries) >= len(want) {
			for i, kind := range want {
				if resp.Entries[i].Kind != kind {
					t.Errorf("entry %d: expected %s, got %s", i, kind, resp.Entries[i].Kind)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal has %d entries, want %d", len(resp.Entries), len(want))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// TestClassroom_BroadcastFanOut validates delivery to a full classroom
func TestClassroom_BroadcastFanOut(t *testing.T) {
	if testing.Short() {
		t.Skip("fan-out test skipped in short mode")
	}

	relay := startRelay(t)
	teacher := relay.dial(t)
	createClass(t, teacher, "BIG1")

	const classSize = 30
	students := make([]<-chan types.Envelope, 0, classSize)
	for i := 0; i < classSize; i++ {
		c := relay.dial(t)
		joinClass(t, c, "BIG1", fmt.Sprintf("Student %d", i+1))
		students = append(students, c.Events())
	}

	const commands = 10
	start := time.Now()
	for i := 0; i < commands; i++ {
		if err := teacher.Emit(types.EventBroadcastToStudents, map[string]interface{}{"type": "step", "n": i}); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, classSize)
	for i, s := range students {
		wg.Add(1)
		go func(i int, events <-chan types.Envelope) {
			defer wg.Done()
			next := 0
			deadline := time.After(5 * time.Second)
			for next < commands {
				select {
				case env := <-events:
					if env.Event != types.EventTeacherCommand {
						continue
					}
					var cmd struct{ N int }
					_ = json.Unmarshal(env.Data, &cmd)
					if cmd.N != next {
						errs <- fmt.Errorf("student %d: got command %d, want %d", i, cmd.N, next)
						return
					}
					next++
				case <-deadline:
					errs <- fmt.Errorf("student %d: received %d of %d commands", i, next, commands)
					return
				}
			}
		}(i, s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fan-out of %d commands to %d students took %v", commands, classSize, elapsed)
	}
}
