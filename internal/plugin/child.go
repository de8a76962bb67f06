package plugin

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattjoyce/brickhost/internal/transport"
)

// child is one running plugin process and its three pipes.
type child struct {
	cmd   *exec.Cmd
	pid   int
	stdin io.WriteCloser

	stdout *transport.Lines
	stderr *transport.Lines
	outR   *os.File
	errR   *os.File

	exited    chan struct{}
	exitCode  int // -1 until exited is closed
	exitHooks transport.Hooks[int]

	logger    *slog.Logger
	startOnce sync.Once
}

// spawn starts the entrypoint with dir as working directory. Readers are not
// started until startReaders, so listeners can attach first.
func spawn(entrypoint, dir string, logger *slog.Logger) (*child, error) {
	cmd := exec.Command(entrypoint)
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	// os.Pipe rather than StdoutPipe: Wait must not wait on our readers.
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		closeAll(outR, outW)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		closeAll(outR, outW, errR, errW)
		return nil, fmt.Errorf("start %s: %w", entrypoint, err)
	}
	// The child holds its own copies now.
	closeAll(outW, errW)

	c := &child{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		stdin:    stdin,
		stdout:   transport.NewLines("stdout", logger),
		stderr:   transport.NewLines("stderr", logger),
		outR:     outR,
		errR:     errR,
		exited:   make(chan struct{}),
		exitCode: -1,
		logger:   logger,
	}
	go c.wait()
	return c, nil
}

func (c *child) startReaders() {
	c.startOnce.Do(func() {
		go c.read(c.stdout, c.outR)
		go c.read(c.stderr, c.errR)
	})
}

func (c *child) read(l *transport.Lines, r *os.File) {
	if err := l.Run(r); err != nil {
		c.logger.Error("plugin stream read failed", "pid", c.pid, "stream", l.Name(), "error", err)
	}
	_ = r.Close()
}

func (c *child) wait() {
	_ = c.cmd.Wait()
	c.exitCode = c.cmd.ProcessState.ExitCode()
	close(c.exited)
	c.exitHooks.Fire(c.exitCode)
}

// onExit registers fn for process exit. If the process already exited, fn
// runs anyway; callers must tolerate a second call.
func (c *child) onExit(fn func(code int)) (remove func()) {
	remove = c.exitHooks.Add(fn)
	if c.hasExited() {
		go fn(c.code())
	}
	return remove
}

func (c *child) exitListeners() int {
	return c.exitHooks.Len()
}

func (c *child) hasExited() bool {
	select {
	case <-c.exited:
		return true
	default:
		return false
	}
}

// code returns the exit code, or -1 while running or when killed by a signal.
func (c *child) code() int {
	if !c.hasExited() {
		return -1
	}
	return c.exitCode
}

func (c *child) interrupt() error {
	err := c.cmd.Process.Signal(os.Interrupt)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (c *child) forceKill() error {
	err := c.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// release waits for the process, gives the readers up to drain to reach EOF,
// then closes the read ends. A grandchild holding the write ends cannot keep
// the readers alive.
func (c *child) release(drain time.Duration) {
	<-c.exited
	c.startReaders()

	drained := make(chan struct{})
	go func() {
		<-c.stdout.Done()
		<-c.stderr.Done()
		close(drained)
	}()

	timer := time.NewTimer(drain)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
	}
	closeAll(c.outR, c.errR)
	<-drained
}

func closeAll(files ...io.Closer) {
	for _, f := range files {
		_ = f.Close()
	}
}
