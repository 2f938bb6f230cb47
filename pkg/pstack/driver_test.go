package pstack

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

type fakeConn struct {
	sent []string
}

func (c *fakeConn) Send(command string) error {
	c.sent = append(c.sent, command)
	return nil
}

// feed drives the session with a scripted sequence of replies, the way
// the event loop would on a live gdb.
func feed(t *testing.T, s *Session, replies [][]string) {
	t.Helper()
	for i, lines := range replies {
		if err := s.HandleReply(lines); err != nil {
			t.Fatalf("reply %d: unexpected error: %v", i, err)
		}
	}
}

var banner = []string{"GNU gdb (GDB) 12.1", "Copyright (C) 2022 Free Software Foundation, Inc."}

func TestSingleThreadedTarget(t *testing.T) {
	conn := &fakeConn{}
	var stdout, stderr bytes.Buffer
	s := NewSession(conn, []int{42}, &stdout, &stderr)

	feed(t, s, [][]string{
		banner,                             // startup: define the macro
		{},                                 // macro ack: attach
		{"Attaching to process 42"},        // attach ok: list threads
		{},                                 // no thread listing: plain backtrace
		{"#0  main () at main.c:10"},       // backtrace text
		{"Detaching from program: foo 42"}, // detach ack, queue empty: quit
	})

	wantSent := []string{
		threadMacro,
		"attach 42",
		"info threads",
		"backtrace",
		"detach",
		"quit",
	}
	if !reflect.DeepEqual(conn.sent, wantSent) {
		t.Errorf("expected commands %q, got %q", wantSent, conn.sent)
	}
	if s.State() != StateDone {
		t.Errorf("expected done state, got %v", s.State())
	}
	wantOut := "Backtrace for pid 42\n#0  main () at main.c:10\n"
	if stdout.String() != wantOut {
		t.Errorf("expected output %q, got %q", wantOut, stdout.String())
	}
	if stderr.Len() != 0 {
		t.Errorf("expected no diagnostics, got %q", stderr.String())
	}
}

func TestMultiThreadedTarget(t *testing.T) {
	conn := &fakeConn{}
	var stdout, stderr bytes.Buffer
	s := NewSession(conn, []int{42}, &stdout, &stderr)

	feed(t, s, [][]string{
		banner,
		{},
		{"Attaching to process 42"},
		{
			"* 2 Thread 0xb7c8db70 (LWP 43) 0x00110416 in __kernel_vsyscall ()",
			"  1 Thread 0xb7fe76c0 (LWP 42) 0x00132416 in pthread_join ()",
		},
		{"#0  __kernel_vsyscall ()"}, // first thread backtrace
		{"#0  pthread_join ()"},      // second thread backtrace
		{},                           // detach ack: quit
	})

	wantSent := []string{
		threadMacro,
		"attach 42",
		"info threads",
		"pstack_thread 2",
		"pstack_thread 1",
		"detach",
		"quit",
	}
	if !reflect.DeepEqual(conn.sent, wantSent) {
		t.Errorf("expected commands %q, got %q", wantSent, conn.sent)
	}
	if s.State() != StateDone {
		t.Errorf("expected done state, got %v", s.State())
	}
}

func TestThreadListingWithoutIDs(t *testing.T) {
	conn := &fakeConn{}
	var stdout, stderr bytes.Buffer
	s := NewSession(conn, []int{42}, &stdout, &stderr)

	feed(t, s, [][]string{
		banner,
		{},
		{"Attaching to process 42"},
		{"No threads."}, // listing text but nothing extractable
	})

	if got := conn.sent[len(conn.sent)-1]; got != "backtrace" {
		t.Errorf("expected fall back to plain backtrace, got %q", got)
	}
	if s.State() != StatePrintBacktrace {
		t.Errorf("expected print-backtrace state, got %v", s.State())
	}
}

// TestSkipAndBacktrace runs the whole two-target scenario: the first
// pid cannot be attached and is skipped with a diagnostic, the second
// has two threads and gets one backtrace block per thread.
func TestSkipAndBacktrace(t *testing.T) {
	conn := &fakeConn{}
	var stdout, stderr bytes.Buffer
	s := NewSession(conn, []int{100, 200}, &stdout, &stderr)

	feed(t, s, [][]string{
		banner,
		{}, // macro ack: attach 100
		{"Attaching to process 100", "ptrace: Operation not permitted."},
		{"$1 = 0"}, // no-op ack: attach 200
		{"Attaching to process 200"},
		{
			"* 2 Thread 0xb7c8db70 (LWP 201) 0x00110416 in __kernel_vsyscall ()",
			"  1 Thread 0xb7fe76c0 (LWP 200) 0x00132416 in pthread_join ()",
		},
		{"#0  __kernel_vsyscall ()", "#1  worker () at worker.c:12"},
		{"#0  pthread_join ()", "#1  main () at main.c:30"},
		{}, // detach ack, queue empty: quit
	})

	wantSent := []string{
		threadMacro,
		"attach 100",
		"p 0",
		"attach 200",
		"info threads",
		"pstack_thread 2",
		"pstack_thread 1",
		"detach",
		"quit",
	}
	if !reflect.DeepEqual(conn.sent, wantSent) {
		t.Errorf("expected commands %q, got %q", wantSent, conn.sent)
	}

	if want := "Skipping pid 100: ptrace: Operation not permitted.\n"; stderr.String() != want {
		t.Errorf("expected diagnostic %q, got %q", want, stderr.String())
	}

	wantOut := strings.Join([]string{
		"Backtrace for pid 200",
		"#0  __kernel_vsyscall ()",
		"#1  worker () at worker.c:12",
		"#0  pthread_join ()",
		"#1  main () at main.c:30",
	}, "\n") + "\n"
	if stdout.String() != wantOut {
		t.Errorf("expected output %q, got %q", wantOut, stdout.String())
	}

	if s.State() != StateDone {
		t.Errorf("expected done state, got %v", s.State())
	}
}

// TestDoneStaysDone checks that replies arriving after the pid queue
// is exhausted only ever produce quit commands.
func TestDoneStaysDone(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession(conn, nil, &bytes.Buffer{}, &bytes.Buffer{})

	feed(t, s, [][]string{banner, {}})

	wantSent := []string{"quit", "quit"}
	if !reflect.DeepEqual(conn.sent, wantSent) {
		t.Errorf("expected commands %q, got %q", wantSent, conn.sent)
	}
	if s.State() != StateDone {
		t.Errorf("expected done state, got %v", s.State())
	}
}

func TestStateStrings(t *testing.T) {
	states := []State{StateStart, StateAttach, StateCheckThreads, StateBacktrace, StatePrintBacktrace, StateDetach, StateDone}
	seen := map[string]bool{}
	for _, st := range states {
		name := st.String()
		if strings.HasPrefix(name, "State(") {
			t.Errorf("state %d has no name", int(st))
		}
		if seen[name] {
			t.Errorf("duplicate state name %q", name)
		}
		seen[name] = true
	}
}
