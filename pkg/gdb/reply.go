package gdb

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// PromptMarker is the literal text gdb prints when it is ready for the
// next command. A reply is complete when it appears as the suffix of
// everything read since the previous reply.
//
// This is an informal contract with gdb's console output: it assumes
// the exact prompt text and that it never occurs as data inside a
// reply. It has held since gdb's beginnings but there is nothing that
// guarantees it.
const PromptMarker = "(gdb) "

const replyBufSize = 1024

// ReadReply reads gdb output chunk by chunk until one complete reply
// has accumulated, and returns it split into lines with the prompt
// remnant dropped. It returns an error when the stream closes before a
// prompt is seen; whatever was accumulated at that point is discarded.
// ReadReply keeps no state between calls beyond the stream position.
func (g *Gdb) ReadReply() ([]string, error) {
	return readReply(g.stdout, g.wireLog)
}

func readReply(r io.Reader, log *logrus.Entry) ([]string, error) {
	var buf bytes.Buffer
	chunk := make([]byte, replyBufSize)
	for {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])

		if strings.HasSuffix(buf.String(), PromptMarker) {
			body := strings.TrimSuffix(buf.String(), PromptMarker)
			lines := strings.Split(body, "\n")
			// Reply text ends with a newline before the prompt, so the
			// split leaves a final empty artifact; drop it.
			if n := len(lines); n > 0 && lines[n-1] == "" {
				lines = lines[:n-1]
			}
			log.Debugf("<- %d lines", len(lines))
			return lines, nil
		}

		if err != nil {
			return nil, err
		}
	}
}

// Replies runs ReadReply in a loop on its own goroutine and delivers
// each framed reply on the returned channel. The channel is closed
// when gdb's output stream closes; a hard read error is reported on
// diag first and then treated the same as closure.
func (g *Gdb) Replies(diag io.Writer) <-chan []string {
	ch := make(chan []string)
	go func() {
		defer close(ch)
		for {
			lines, err := g.ReadReply()
			if err != nil {
				if err != io.EOF {
					fmt.Fprintf(diag, "gdb read error: %v\n", err)
				}
				return
			}
			ch <- lines
		}
	}()
	return ch
}
