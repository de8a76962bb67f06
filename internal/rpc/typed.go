package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/brickhost/internal/protocol"
)

// Typed adapts a function with concrete request and result types into a
// Handler. Missing params decode into the zero value of P.
func Typed[P, R any](fn func(ctx context.Context, params P) (R, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, protocol.InvalidParams(fmt.Errorf("decode params: %w", err))
			}
		}
		return fn(ctx, params)
	}
}

// Decode unmarshals a result returned by Emit into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
