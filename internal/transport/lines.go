// Package transport turns a child's byte streams into line events.
//
// A child process has two independent line-oriented streams: stdout carries
// JSON control messages and stderr carries free-form diagnostic text. Each is
// wrapped in a Lines value that reads until EOF and hands every line to the
// listeners currently attached. Listeners are attached and detached per load
// cycle, so Lines never owns what happens to a line.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// MaxLineBytes caps a single line. Longer lines are logged and skipped; the
// stream keeps reading from the next newline.
const MaxLineBytes = 4 << 20

// Lines reads newline-delimited text from a stream and fans it out.
type Lines struct {
	name   string
	logger *slog.Logger
	hooks  Hooks[[]byte]
	done   chan struct{}
	err    error
}

// NewLines creates a line stream. name appears in logs and errors. A nil
// logger means slog.Default.
func NewLines(name string, logger *slog.Logger) *Lines {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lines{
		name:   name,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Name returns the stream name.
func (l *Lines) Name() string { return l.name }

// On attaches a listener for every subsequent line. The byte slice passed to
// fn is owned by the listener. The returned func detaches it.
func (l *Lines) On(fn func(line []byte)) (remove func()) {
	return l.hooks.Add(fn)
}

// Listeners returns how many listeners are attached.
func (l *Lines) Listeners() int {
	return l.hooks.Len()
}

// Start reads r in a new goroutine. A read error is logged.
func (l *Lines) Start(r io.Reader) {
	go func() {
		if err := l.Run(r); err != nil {
			l.logger.Error("stream read failed", "stream", l.name, "error", err)
		}
	}()
}

// Run reads r until EOF or a read error and dispatches each line. Trailing
// "\r" is stripped. Lines over MaxLineBytes are dropped with a warning. It
// closes Done when it returns.
func (l *Lines) Run(r io.Reader) error {
	defer close(l.done)

	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	skipped := 0 // bytes of the oversized line being discarded
	for {
		chunk, err := br.ReadSlice('\n')
		complete := err == nil
		if skipped > 0 {
			skipped += len(chunk)
		} else {
			line = append(line, chunk...)
			n := len(line)
			if complete {
				n--
			}
			if n > MaxLineBytes {
				skipped = len(line)
				line = line[:0]
			}
		}

		if complete {
			if skipped > 0 {
				l.dropOversized(skipped - 1)
				skipped = 0
			} else {
				l.emit(line[:len(line)-1])
			}
			line = line[:0]
			continue
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if skipped > 0 {
			l.dropOversized(skipped)
		} else if len(line) > 0 {
			l.emit(line)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
			return nil
		}
		l.err = fmt.Errorf("read %s: %w", l.name, err)
		return l.err
	}
}

func (l *Lines) emit(raw []byte) {
	if n := len(raw); n > 0 && raw[n-1] == '\r' {
		raw = raw[:n-1]
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	l.hooks.Fire(out)
}

func (l *Lines) dropOversized(size int) {
	l.logger.Warn("dropped oversized line", "stream", l.name, "bytes", size, "limit", MaxLineBytes)
}

// Done is closed once the stream has been fully read.
func (l *Lines) Done() <-chan struct{} {
	return l.done
}

// Err returns the read error, if any, after Done is closed.
func (l *Lines) Err() error {
	<-l.done
	return l.err
}
