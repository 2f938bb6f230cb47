package pstack

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pstack/pstack/pkg/gdb"
)

// Options carries run tuning resolved from flags and the config file.
type Options struct {
	// GdbPath overrides the gdb binary; empty means "gdb" on PATH.
	GdbPath string
	// GdbArgs are extra arguments appended to the gdb command line.
	GdbArgs []string

	ReapDelay   time.Duration
	ReapRetries int

	Stdout io.Writer
	Stderr io.Writer
}

// Run drives one complete pstack session: spawn gdb, feed the driver
// every framed reply until gdb's output stream closes, then reap the
// subprocess. It returns the process exit status.
//
// The loop is the tool's entire concurrency story: one goroutine
// frames replies onto a channel, and this goroutine consumes them.
// The channel closing covers both conditions the session must react
// to, the next reply being ready and the pipe having closed or
// errored.
func Run(pids []int, opts Options) int {
	g, err := gdb.Spawn(gdb.Config{
		Path:        opts.GdbPath,
		Args:        opts.GdbArgs,
		ReapDelay:   opts.ReapDelay,
		ReapRetries: opts.ReapRetries,
	})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "Unable to start gdb: %v\n", err)
		return 1
	}

	sess := NewSession(g, pids, opts.Stdout, opts.Stderr)

	for lines := range g.Replies(opts.Stderr) {
		if err := sess.HandleReply(lines); err != nil {
			// The write end is gone; the reply channel will close on
			// its own shortly and teardown runs below.
			sess.log.Errorf("send: %v", err)
		}
	}

	if sess.State() != StateDone {
		fmt.Fprintln(opts.Stderr, "gdb unexpectedly died!")
	}

	g.Reap()
	return 0
}
