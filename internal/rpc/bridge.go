// Package rpc implements the bidirectional JSON-RPC bridge to a plugin.
//
// A Bridge is created per load cycle. Outbound requests (Emit) get a
// correlation id and wait for the matching response; outbound notifications
// (Notify) are fire-and-forget. Inbound lines are handed to Dispatch, which
// resolves responses and routes requests and notifications to the handlers
// registered with Handle.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mattjoyce/brickhost/internal/protocol"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrClosed rejects requests that were pending when the bridge closed, and
	// any Emit made afterwards.
	ErrClosed = errors.New("rpc bridge closed")
	// ErrMethodNotFound matches replies (local or remote) for unknown methods.
	ErrMethodNotFound error = protocol.ErrMethodNotFound
)

// Handler serves one inbound method. For notifications the result is discarded.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

type outcome struct {
	result json.RawMessage
	err    error
}

// Bridge multiplexes requests, responses and notifications over one writer.
type Bridge struct {
	logger *slog.Logger

	writeMu sync.Mutex
	w       io.Writer

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]chan outcome
	handlers map[string]Handler
	closed   bool
	closeErr error

	// ctx is handed to inbound handlers; cancelled on Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a bridge that writes outbound lines to w.
func NewBridge(w io.Writer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		logger:   logger,
		w:        w,
		pending:  make(map[int64]chan outcome),
		handlers: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handle registers h for inbound requests and notifications named method.
func (b *Bridge) Handle(method string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[method] = h
}

// Methods returns the number of registered inbound methods.
func (b *Bridge) Methods() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

// Emit sends a request and waits for the peer's reply.
// Returns the raw result, a *protocol.Error from the peer, ErrClosed if the
// bridge closes first, or ctx.Err().
func (b *Bridge) Emit(ctx context.Context, method string, params any) (json.RawMessage, error) {
	b.mu.Lock()
	if b.closed {
		err := b.closeErr
		b.mu.Unlock()
		return nil, err
	}
	b.nextID++
	id := b.nextID
	ch := make(chan outcome, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	msg, err := protocol.NewRequest(id, method, params)
	if err == nil {
		err = b.write(msg)
	}
	if err != nil {
		b.forget(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		b.forget(id)
		return nil, ctx.Err()
	}
}

// Notify sends a notification. Failures are logged, never returned: nobody
// waits on a notification. Notify on a closed bridge does nothing.
func (b *Bridge) Notify(method string, params any) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		b.logger.Warn("failed to encode notification", "method", method, "error", err)
		return
	}
	if err := b.write(msg); err != nil {
		b.logger.Debug("failed to send notification", "method", method, "error", err)
	}
}

// Pending returns the number of requests awaiting a reply.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close rejects every pending request with err (ErrClosed if nil) and makes
// later Emit calls fail immediately. Safe to call more than once; only the
// first error is kept.
func (b *Bridge) Close(err error) {
	if err == nil {
		err = ErrClosed
	}

	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.closeErr = err
	}
	pending := b.pending
	b.pending = make(map[int64]chan outcome)
	b.mu.Unlock()

	b.cancel()
	for _, ch := range pending {
		ch <- outcome{err: err}
	}
}

// Dispatch handles one inbound line. Malformed lines are logged and dropped.
func (b *Bridge) Dispatch(line []byte) {
	msg, err := protocol.Decode(line)
	if err != nil {
		b.logger.Warn("dropping malformed line from plugin", "error", err, "line", string(line))
		return
	}

	switch msg.Kind() {
	case protocol.KindResponse:
		b.resolve(msg)
	case protocol.KindRequest:
		go b.serve(msg)
	case protocol.KindNotification:
		b.notify(msg)
	}
}

func (b *Bridge) resolve(msg *protocol.Message) {
	id, err := protocol.ParseID(msg.ID)
	if err != nil {
		b.logger.Warn("dropping response with unknown id", "error", err)
		return
	}

	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("dropping response for request no longer pending", "id", id)
		return
	}

	if msg.Error != nil {
		ch <- outcome{err: msg.Error}
		return
	}
	result := msg.Result
	if result == nil {
		result = json.RawMessage("null")
	}
	ch <- outcome{result: result}
}

func (b *Bridge) serve(msg *protocol.Message) {
	h, ok := b.handler(msg.Method)
	if !ok {
		b.reply(protocol.NewErrorResponse(msg.ID, protocol.MethodNotFound(msg.Method)))
		return
	}

	result, err := b.call(h, msg.Method, msg.Params)
	if err != nil {
		b.reply(protocol.NewErrorResponse(msg.ID, toRPCError(err)))
		return
	}
	resp, err := protocol.NewResult(msg.ID, result)
	if err != nil {
		b.reply(protocol.NewErrorResponse(msg.ID, &protocol.Error{Code: protocol.CodeInternalError, Message: err.Error()}))
		return
	}
	b.reply(resp)
}

func (b *Bridge) notify(msg *protocol.Message) {
	h, ok := b.handler(msg.Method)
	if !ok {
		return
	}
	if _, err := b.call(h, msg.Method, msg.Params); err != nil {
		b.logger.Debug("notification handler failed", "method", msg.Method, "error", err)
	}
}

// call runs h, turning a panic into an error so one bad handler cannot take
// down the host.
func (b *Bridge) call(h Handler, method string, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", "method", method, "panic", r)
			err = &protocol.Error{Code: protocol.CodeInternalError, Message: fmt.Sprintf("handler panicked: %v", r)}
		}
	}()
	return h(b.ctx, params)
}

func (b *Bridge) reply(msg *protocol.Message) {
	if err := b.write(msg); err != nil {
		b.logger.Debug("failed to send response", "error", err)
	}
}

func (b *Bridge) handler(method string) (Handler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.handlers[method]
	return h, ok
}

func (b *Bridge) forget(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Bridge) write(msg *protocol.Message) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return protocol.Encode(b.w, msg)
}

func toRPCError(err error) *protocol.Error {
	var rpcErr *protocol.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &protocol.Error{Code: protocol.CodeServerError, Message: err.Error()}
}
