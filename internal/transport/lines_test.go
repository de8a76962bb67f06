package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) add(line []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, string(line))
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestLines_RunDispatchesEachLine(t *testing.T) {
	l := NewLines("stdout", nil)
	var rec recorder
	l.On(rec.add)

	err := l.Run(strings.NewReader("one\ntwo\r\n\nthree"))
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "", "three"}, rec.get())
	select {
	case <-l.Done():
	default:
		t.Fatal("Done should be closed after Run returns")
	}
}

func TestLines_MultipleListenersSeeSameLines(t *testing.T) {
	l := NewLines("stderr", nil)
	var a, b recorder
	l.On(a.add)
	l.On(b.add)

	require.NoError(t, l.Run(strings.NewReader("x\ny\n")))
	assert.Equal(t, []string{"x", "y"}, a.get())
	assert.Equal(t, []string{"x", "y"}, b.get())
}

func TestLines_DetachedListenerStopsReceiving(t *testing.T) {
	defer goleak.VerifyNone(t)

	pr, pw := io.Pipe()
	l := NewLines("stdout", nil)
	var rec recorder
	got := make(chan struct{}, 8)
	remove := l.On(func(line []byte) {
		rec.add(line)
		got <- struct{}{}
	})
	l.Start(pr)

	_, err := pw.Write([]byte("first\n"))
	require.NoError(t, err)
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("first line not delivered")
	}

	remove()
	remove() // idempotent
	assert.Equal(t, 0, l.Listeners())

	_, err = pw.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	<-l.Done()

	assert.Equal(t, []string{"first"}, rec.get())
}

func TestLines_ListenerCountBalanced(t *testing.T) {
	l := NewLines("stdout", nil)
	for i := 0; i < 10; i++ {
		r1 := l.On(func([]byte) {})
		r2 := l.On(func([]byte) {})
		assert.Equal(t, 2, l.Listeners())
		r2()
		r1()
	}
	assert.Equal(t, 0, l.Listeners())
}

func TestLines_OversizedLineIsSkipped(t *testing.T) {
	var logs bytes.Buffer
	l := NewLines("stdout", slog.New(slog.NewTextHandler(&logs, nil)))
	var rec recorder
	l.On(rec.add)

	long := strings.Repeat("a", MaxLineBytes+1)
	input := "before\n" + long + "\n" + `{"jsonrpc":"2.0","id":1,"result":"pong"}` + "\n" + long
	require.NoError(t, l.Run(strings.NewReader(input)))

	assert.Equal(t, []string{"before", `{"jsonrpc":"2.0","id":1,"result":"pong"}`}, rec.get())
	out := logs.String()
	assert.Equal(t, 2, strings.Count(out, "dropped oversized line"))
	assert.Contains(t, out, "stream=stdout")
	assert.Contains(t, out, fmt.Sprintf("bytes=%d", MaxLineBytes+1))
}

func TestLines_LineAtLimitIsKept(t *testing.T) {
	l := NewLines("stdout", nil)
	var rec recorder
	l.On(rec.add)

	exact := strings.Repeat("b", MaxLineBytes)
	require.NoError(t, l.Run(strings.NewReader(exact+"\nnext\r\n")))
	got := rec.get()
	require.Len(t, got, 2)
	assert.Len(t, got[0], MaxLineBytes)
	assert.Equal(t, "next", got[1])
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestLines_ReadErrorIsReturned(t *testing.T) {
	l := NewLines("stderr", nil)
	err := l.Run(brokenReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read stderr")
	assert.Equal(t, err, l.Err())
}

func TestHooks_ListenerMayRemoveItself(t *testing.T) {
	var h Hooks[int]
	calls := 0
	var remove func()
	remove = h.Add(func(int) {
		calls++
		remove()
	})
	h.Fire(1)
	h.Fire(2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, h.Len())
}
