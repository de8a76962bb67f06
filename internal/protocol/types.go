// Package protocol defines the line-delimited JSON-RPC 2.0 messages exchanged
// with plugins over their stdin/stdout.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the jsonrpc field value written on every message.
const Version = "2.0"

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeServerError is used for errors returned by method handlers.
	CodeServerError = -32000
)

// Kind classifies a decoded message.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Message is the envelope for every control-stream line.
// Requests carry ID+Method, notifications carry Method only, responses carry
// ID plus exactly one of Result or Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind reports which of the three message shapes m has.
func (m *Message) Kind() Kind {
	hasID := len(m.ID) > 0 && string(m.ID) != "null"
	switch {
	case m.Method != "" && hasID:
		return KindRequest
	case m.Method != "":
		return KindNotification
	case hasID:
		return KindResponse
	default:
		return KindInvalid
	}
}

// Error is a JSON-RPC error object. It doubles as a Go error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so errors.Is(err, ErrMethodNotFound)
// works regardless of the peer's message text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ErrMethodNotFound is the error kind for calls to unregistered methods.
var ErrMethodNotFound = &Error{Code: CodeMethodNotFound, Message: "method not found"}

// MethodNotFound builds the error reply for an unknown method name.
func MethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}

// InvalidParams builds the error reply for params that do not decode.
func InvalidParams(err error) *Error {
	return &Error{Code: CodeInvalidParams, Message: err.Error()}
}
