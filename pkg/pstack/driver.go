// Package pstack implements the protocol driver that sequences
// console commands to gdb, one target process at a time, and the event
// loop that feeds it framed replies.
package pstack

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/go-pstack/pstack/pkg/gdb"
	"github.com/go-pstack/pstack/pkg/logflags"
)

// State enumerates the driver's position in the per-target
// attach/backtrace/detach cycle.
type State int

const (
	StateStart State = iota
	StateAttach
	StateCheckThreads
	StateBacktrace
	StatePrintBacktrace
	StateDetach
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAttach:
		return "attach"
	case StateCheckThreads:
		return "check-threads"
	case StateBacktrace:
		return "backtrace"
	case StatePrintBacktrace:
		return "print-backtrace"
	case StateDetach:
		return "detach"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// threadMacro is defined once at session start. It folds the two-step
// "switch thread, then backtrace" interaction into a single
// round-trip, halving the command/reply cycles needed for
// multi-threaded targets.
const threadMacro = "define pstack_thread\nthread $arg0\nbacktrace\nend"

// Conn is the slice of the gdb session the driver needs: sending one
// console command.
type Conn interface {
	Send(command string) error
}

// Session is the entire mutable state of one pstack run: the queue of
// target pids, the queue of thread ids discovered for the current
// target, and the driver state. There is exactly one Session per
// invocation and it is touched only from the event loop goroutine.
type Session struct {
	conn Conn

	pids    []int
	threads []string

	state State

	stdout io.Writer
	stderr io.Writer

	log *logrus.Entry
}

// NewSession creates a session over conn for the given targets.
// Backtraces are printed to stdout, diagnostics to stderr.
func NewSession(conn Conn, pids []int, stdout, stderr io.Writer) *Session {
	return &Session{
		conn:   conn,
		pids:   pids,
		state:  StateStart,
		stdout: stdout,
		stderr: stderr,
		log:    logflags.DriverLogger(),
	}
}

// State returns the driver's current state.
func (s *Session) State() State {
	return s.state
}

// HandleReply advances the state machine in response to one complete
// framed reply. Every outbound command is sent from here, in direct
// response to the reply that just arrived, so there is never more than
// one command outstanding; gdb's console protocol has no way to
// correlate replies otherwise.
func (s *Session) HandleReply(lines []string) error {
	pid := -1
	if len(s.pids) > 0 {
		pid = s.pids[0]
	} else {
		s.setState(StateDone)
	}

	switch s.state {
	case StateStart:
		if err := s.conn.Send(threadMacro); err != nil {
			return err
		}
		s.setState(StateAttach)

	case StateAttach:
		if err := s.conn.Send(fmt.Sprintf("attach %d", pid)); err != nil {
			return err
		}
		s.setState(StateCheckThreads)

	case StateCheckThreads:
		if msg, failed := gdb.AttachFailed(lines); failed {
			fmt.Fprintf(s.stderr, "Skipping pid %d: %s\n", pid, msg)

			// Harmless no-op, so the skipped attach still gets a
			// command/reply cycle and the alternation stays in step.
			if err := s.conn.Send("p 0"); err != nil {
				return err
			}
			s.pids = s.pids[1:]
			s.setState(StateAttach)
			break
		}
		if err := s.conn.Send("info threads"); err != nil {
			return err
		}
		s.setState(StateBacktrace)

	case StateBacktrace:
		fmt.Fprintf(s.stdout, "Backtrace for pid %d\n", pid)

		if len(lines) > 0 {
			s.threads = gdb.ThreadIDs(lines)
		}
		if len(s.threads) > 0 {
			if err := s.sendThreadBacktrace(); err != nil {
				return err
			}
		} else {
			// Single-threaded target (or a listing we could not make
			// sense of): one plain backtrace.
			if err := s.conn.Send("backtrace"); err != nil {
				return err
			}
		}
		s.setState(StatePrintBacktrace)

	case StatePrintBacktrace:
		for _, line := range lines {
			fmt.Fprintln(s.stdout, line)
		}
		if len(s.threads) > 0 {
			return s.sendThreadBacktrace()
		}
		fallthrough

	case StateDetach:
		if err := s.conn.Send("detach"); err != nil {
			return err
		}
		s.threads = nil
		s.pids = s.pids[1:]
		s.setState(StateAttach)

	case StateDone:
		return s.conn.Send("quit")
	}

	return nil
}

func (s *Session) sendThreadBacktrace() error {
	id := s.threads[0]
	s.threads = s.threads[1:]
	return s.conn.Send("pstack_thread " + id)
}

func (s *Session) setState(next State) {
	if next != s.state {
		s.log.Debugf("%v -> %v", s.state, next)
	}
	s.state = next
}
