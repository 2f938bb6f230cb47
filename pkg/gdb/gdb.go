// Package gdb manages a gdb subprocess driven through its text
// console: spawning it with merged output streams, framing its
// prompt-delimited replies, interpreting the replies pstack cares
// about, and tearing the process down with escalating signals when it
// will not exit on its own.
package gdb

import (
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/go-pstack/pstack/pkg/logflags"
)

const (
	// DefaultReapDelay is the pause between polls for gdb's exit status
	// during teardown.
	DefaultReapDelay = 1000 * time.Millisecond
	// DefaultReapRetries is the number of polls tolerated before gdb is
	// sent an escalating termination signal.
	DefaultReapRetries = 5
)

// Config configures a gdb subprocess.
type Config struct {
	// Path is the gdb binary to run, looked up on PATH if not absolute.
	// If empty, "gdb" is used.
	Path string
	// Args are extra arguments appended after --nx.
	Args []string

	// ReapDelay and ReapRetries tune teardown polling. Zero values mean
	// the defaults.
	ReapDelay   time.Duration
	ReapRetries int
}

// Gdb is a running gdb subprocess with its console piped.
type Gdb struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader

	waitChan chan *os.ProcessState

	reapDelay   time.Duration
	reapRetries int
	signal      func(sig unix.Signal) error

	wireLog *logrus.Entry
}

// Spawn starts gdb with its stdin piped and its stderr merged into the
// stream ReadReply observes, so that error text interleaves with
// normal console output.
func Spawn(cfg Config) (*Gdb, error) {
	path := cfg.Path
	if path == "" {
		path = "gdb"
	}
	args := append([]string{"--nx"}, cfg.Args...)
	cmd := exec.Command(path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child holds the write end now; keeping ours open would stop
	// the read end from ever seeing EOF.
	pw.Close()

	g := &Gdb{
		cmd:         cmd,
		stdin:       stdin,
		stdout:      pr,
		waitChan:    make(chan *os.ProcessState, 1),
		reapDelay:   cfg.ReapDelay,
		reapRetries: cfg.ReapRetries,
		wireLog:     logflags.GdbWireLogger(),
	}
	if g.reapDelay <= 0 {
		g.reapDelay = DefaultReapDelay
	}
	if g.reapRetries <= 0 {
		g.reapRetries = DefaultReapRetries
	}
	g.signal = func(sig unix.Signal) error {
		return unix.Kill(g.Pid(), sig)
	}

	go func() {
		state, _ := cmd.Process.Wait()
		g.waitChan <- state
	}()

	return g, nil
}

// Pid returns the gdb subprocess pid.
func (g *Gdb) Pid() int {
	return g.cmd.Process.Pid
}

// Send writes one console command, terminated by a newline. Multi-line
// commands (macro definitions) are sent as a single write.
func (g *Gdb) Send(command string) error {
	g.wireLog.Debugf("-> %q", command)
	_, err := io.WriteString(g.stdin, command+"\n")
	return err
}

// Reap waits for gdb to exit without ever blocking in the wait itself:
// it polls the exit status on a fixed delay, decrementing a retry
// counter each time the child is still alive. When the counter reaches
// zero gdb is sent SIGTERM; once it goes negative, SIGKILL. The loop
// ends only when the exit status has been collected, so total wait
// time before forceful termination is bounded.
func (g *Gdb) Reap() *os.ProcessState {
	return g.reap(time.Sleep)
}

func (g *Gdb) reap(sleep func(time.Duration)) *os.ProcessState {
	retry := g.reapRetries
	for {
		retry--
		select {
		case state := <-g.waitChan:
			return state
		default:
		}
		if retry == 0 {
			g.signal(unix.SIGTERM)
		} else if retry < 0 {
			g.signal(unix.SIGKILL)
		}
		sleep(g.reapDelay)
	}
}
