package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mattjoyce/brickhost/internal/log"
	"github.com/mattjoyce/brickhost/internal/protocol"
)

// peer captures every line the bridge writes, standing in for a plugin's stdin.
type peer struct {
	lines chan []byte
}

func newPeer() *peer {
	return &peer{lines: make(chan []byte, 32)}
}

func (p *peer) Write(b []byte) (int, error) {
	line := make([]byte, len(b))
	copy(line, b)
	p.lines <- line
	return len(b), nil
}

func (p *peer) next(t *testing.T) *protocol.Message {
	t.Helper()
	select {
	case line := <-p.lines:
		msg, err := protocol.Decode(line)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bridge output")
		return nil
	}
}

func (p *peer) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case line := <-p.lines:
		t.Fatalf("unexpected output: %s", line)
	case <-time.After(50 * time.Millisecond):
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func quietLogger() *slog.Logger {
	return log.Discard()
}

type emitResult struct {
	raw json.RawMessage
	err error
}

func emitAsync(b *Bridge, ctx context.Context, method string, params any) <-chan emitResult {
	out := make(chan emitResult, 1)
	go func() {
		raw, err := b.Emit(ctx, method, params)
		out <- emitResult{raw: raw, err: err}
	}()
	return out
}

func TestBridge_EmitResolvesWithResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newPeer()
	b := NewBridge(p, quietLogger())

	res := emitAsync(b, context.Background(), "init", map[string]any{"greeting": "hi"})

	req := p.next(t)
	assert.Equal(t, protocol.KindRequest, req.Kind())
	assert.Equal(t, "init", req.Method)
	assert.JSONEq(t, `{"greeting":"hi"}`, string(req.Params))
	assert.Equal(t, 1, b.Pending())

	b.Dispatch([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":{"registeredCommands":["a"]}}`, req.ID)))

	got := <-res
	require.NoError(t, got.err)
	assert.JSONEq(t, `{"registeredCommands":["a"]}`, string(got.raw))
	assert.Equal(t, 0, b.Pending())
}

func TestBridge_EmitIDsIncrease(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())
	defer b.Close(nil)

	first := emitAsync(b, context.Background(), "a", nil)
	r1 := p.next(t)
	second := emitAsync(b, context.Background(), "b", nil)
	r2 := p.next(t)

	id1, err := protocol.ParseID(r1.ID)
	require.NoError(t, err)
	id2, err := protocol.ParseID(r2.ID)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	// Out of order replies still reach the right caller.
	b.Dispatch([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"second"}`, id2)))
	b.Dispatch([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"first"}`, id1)))

	got1 := <-first
	got2 := <-second
	assert.JSONEq(t, `"first"`, string(got1.raw))
	assert.JSONEq(t, `"second"`, string(got2.raw))
}

func TestBridge_EmitErrorMatchesMethodNotFound(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())

	res := emitAsync(b, context.Background(), "stop", nil)
	req := p.next(t)
	b.Dispatch([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"no stop here"}}`, req.ID)))

	got := <-res
	require.Error(t, got.err)
	assert.True(t, errors.Is(got.err, ErrMethodNotFound))

	var rpcErr *protocol.Error
	require.True(t, errors.As(got.err, &rpcErr))
	assert.Equal(t, "no stop here", rpcErr.Message)
}

func TestBridge_EmitOtherErrorIsNotMethodNotFound(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())

	res := emitAsync(b, context.Background(), "init", nil)
	req := p.next(t)
	b.Dispatch([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"boom"}}`, req.ID)))

	got := <-res
	require.Error(t, got.err)
	assert.False(t, errors.Is(got.err, ErrMethodNotFound))
}

func TestBridge_CloseRejectsPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newPeer()
	b := NewBridge(p, quietLogger())

	results := []<-chan emitResult{
		emitAsync(b, context.Background(), "one", nil),
		emitAsync(b, context.Background(), "two", nil),
	}
	p.next(t)
	p.next(t)
	require.Equal(t, 2, b.Pending())

	b.Close(nil)

	for _, res := range results {
		got := <-res
		assert.ErrorIs(t, got.err, ErrClosed)
	}
	assert.Equal(t, 0, b.Pending())

	_, err := b.Emit(context.Background(), "late", nil)
	assert.ErrorIs(t, err, ErrClosed)
	p.assertSilent(t)
}

func TestBridge_CloseKeepsFirstError(t *testing.T) {
	b := NewBridge(newPeer(), quietLogger())
	cause := errors.New("child exited")

	b.Close(cause)
	b.Close(nil)

	_, err := b.Emit(context.Background(), "x", nil)
	assert.ErrorIs(t, err, cause)
}

func TestBridge_EmitContextCancelled(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	res := emitAsync(b, ctx, "slow", nil)
	req := p.next(t)
	cancel()

	got := <-res
	assert.ErrorIs(t, got.err, context.Canceled)
	assert.Equal(t, 0, b.Pending())

	// A late reply for the abandoned request is dropped.
	b.Dispatch([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":1}`, req.ID)))
	assert.Equal(t, 0, b.Pending())
}

func TestBridge_EmitWriteFailure(t *testing.T) {
	b := NewBridge(failingWriter{}, quietLogger())

	_, err := b.Emit(context.Background(), "init", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, 0, b.Pending())
}

func TestBridge_NotifyWritesWithoutPending(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())

	b.Notify("join", []any{"alice", 42})

	msg := p.next(t)
	assert.Equal(t, protocol.KindNotification, msg.Kind())
	assert.Equal(t, "join", msg.Method)
	assert.JSONEq(t, `["alice",42]`, string(msg.Params))
	assert.Equal(t, 0, b.Pending())
}

func TestBridge_NotifyWriteFailureIsSwallowed(t *testing.T) {
	b := NewBridge(failingWriter{}, quietLogger())
	assert.NotPanics(t, func() { b.Notify("join", nil) })
}

func TestBridge_DispatchRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name    string
		handler Handler
		line    string
		checkFn func(t *testing.T, msg *protocol.Message)
	}{
		{
			name: "result",
			handler: func(_ context.Context, params json.RawMessage) (any, error) {
				var key string
				if err := json.Unmarshal(params, &key); err != nil {
					return nil, err
				}
				return "value-of-" + key, nil
			},
			line: `{"jsonrpc":"2.0","id":7,"method":"get","params":"k"}`,
			checkFn: func(t *testing.T, msg *protocol.Message) {
				assert.Equal(t, "7", string(msg.ID))
				assert.Nil(t, msg.Error)
				assert.JSONEq(t, `"value-of-k"`, string(msg.Result))
			},
		},
		{
			name: "nil result is null",
			handler: func(context.Context, json.RawMessage) (any, error) {
				return nil, nil
			},
			line: `{"jsonrpc":"2.0","id":8,"method":"get"}`,
			checkFn: func(t *testing.T, msg *protocol.Message) {
				assert.Nil(t, msg.Error)
				assert.Equal(t, "null", string(msg.Result))
			},
		},
		{
			name: "handler error",
			handler: func(context.Context, json.RawMessage) (any, error) {
				return nil, errors.New("disk full")
			},
			line: `{"jsonrpc":"2.0","id":9,"method":"get"}`,
			checkFn: func(t *testing.T, msg *protocol.Message) {
				require.NotNil(t, msg.Error)
				assert.Equal(t, protocol.CodeServerError, msg.Error.Code)
				assert.Equal(t, "disk full", msg.Error.Message)
			},
		},
		{
			name: "unknown method",
			line: `{"jsonrpc":"2.0","id":10,"method":"nope"}`,
			checkFn: func(t *testing.T, msg *protocol.Message) {
				assert.Equal(t, "10", string(msg.ID))
				require.NotNil(t, msg.Error)
				assert.Equal(t, protocol.CodeMethodNotFound, msg.Error.Code)
				assert.Contains(t, msg.Error.Message, "nope")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPeer()
			b := NewBridge(p, quietLogger())
			if tt.handler != nil {
				b.Handle("get", tt.handler)
			}

			b.Dispatch([]byte(tt.line))

			msg := p.next(t)
			assert.Equal(t, protocol.KindResponse, msg.Kind())
			tt.checkFn(t, msg)
		})
	}
}

func TestBridge_DispatchNotification(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())

	var got []string
	b.Handle("log", func(_ context.Context, params json.RawMessage) (any, error) {
		var s string
		_ = json.Unmarshal(params, &s)
		got = append(got, s)
		return "ignored", nil
	})

	b.Dispatch([]byte(`{"jsonrpc":"2.0","method":"log","params":"hello"}`))
	b.Dispatch([]byte(`{"jsonrpc":"2.0","method":"unknown","params":"x"}`))

	// Notifications run inline and never produce a reply.
	assert.Equal(t, []string{"hello"}, got)
	p.assertSilent(t)
}

func TestBridge_DispatchDropsMalformed(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())

	for _, line := range []string{"", "not json", `{"jsonrpc":"1.0","method":"x"}`, `{"jsonrpc":"2.0"}`, `{"jsonrpc":"2.0","id":"abc","result":1}`} {
		assert.NotPanics(t, func() { b.Dispatch([]byte(line)) }, line)
	}
	p.assertSilent(t)
}

func TestBridge_HandlerContextCancelledOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newPeer()
	b := NewBridge(p, quietLogger())
	started := make(chan struct{})
	b.Handle("wait", func(ctx context.Context, _ json.RawMessage) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	b.Dispatch([]byte(`{"jsonrpc":"2.0","id":1,"method":"wait"}`))
	<-started
	b.Close(nil)

	msg := p.next(t)
	require.NotNil(t, msg.Error)
	assert.Equal(t, protocol.CodeServerError, msg.Error.Code)
}

func TestBridge_NotifyAfterCloseIsDropped(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())
	b.Close(nil)

	b.Notify("join", []any{"late"})
	p.assertSilent(t)
}

func TestBridge_HandlerPanicBecomesInternalError(t *testing.T) {
	p := newPeer()
	b := NewBridge(p, quietLogger())
	b.Handle("boom", func(context.Context, json.RawMessage) (any, error) {
		panic("nil console")
	})

	b.Dispatch([]byte(`{"jsonrpc":"2.0","id":3,"method":"boom"}`))

	msg := p.next(t)
	require.NotNil(t, msg.Error)
	assert.Equal(t, protocol.CodeInternalError, msg.Error.Code)
}
