package webhook

import (
	"encoding/json"

	"github.com/mattjoyce/brickhost/internal/events"
)

// Publisher is the publishing side of events.Hub.
type Publisher interface {
	Publish(eventType string, args ...any) events.Event
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	Path string

	// Secret is the HMAC secret for signature verification.
	Secret string

	// SignatureHeader carries the signature, "sha256=<hex>" or bare hex.
	SignatureHeader string

	EventPrefix string
	MaxBodySize int64
}

// Payload is the accepted request body.
type Payload struct {
	Type string            `json:"type"`
	Args []json.RawMessage `json:"args"`
}

// AcceptedResponse is the JSON response for a published event.
type AcceptedResponse struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSignatureHeader = "X-Brickhost-Signature"
)
