// Package webhook is the signed HTTP ingress for host events.
//
// Producers that run outside the host process (a console log tailer, a chat
// relay) POST events here instead of linking against the bus. Every endpoint
// requires an HMAC-SHA256 signature over the raw body using a pre-shared
// secret.
//
// # Request
//
//	POST /hooks/console
//	X-Brickhost-Signature: sha256=<hex hmac of body>
//
//	{"type": "join", "args": [{"name": "alice", "id": "a-1"}]}
//
// The event is published on the bus as type EventPrefix+type with args
// unchanged, so every loaded plugin receives it as a notification.
//
// # Responses
//
//   - 202 Accepted: {"id": <event id>, "type": "<published type>"}
//   - 400 Bad Request: body is not an event object or type is empty
//   - 403 Forbidden: invalid or missing signature (no details)
//   - 404 Not Found: unknown path
//   - 413 Payload Too Large: body exceeds max_body_size
package webhook
