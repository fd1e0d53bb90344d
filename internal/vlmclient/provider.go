// Package vlmclient talks to the vision-language model HTTP surface
// (caption/detect/segment/query) and classifies its failures.
package vlmclient

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotSupported marks an operation a provider variant cannot perform.
// Callers treat it as "skip this step silently for the rest of the job".
var ErrNotSupported = errors.New("not supported")

// ProviderError wraps any transport, HTTP-status, or VLM-reported failure
// from a caption/detect/segment/query call.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("vlm %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newProviderError(op string, format string, args ...any) *ProviderError {
	return &ProviderError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Provider is the uniform surface over the four VLM operations.
type Provider interface {
	Caption(ctx context.Context, imageRef, length string) (string, error)
	Detect(ctx context.Context, imageRef, object string) (any, error)
	Segment(ctx context.Context, imageRef, object string) (any, error)
	Query(ctx context.Context, imageRef, question string) (string, error)
	ModelVersion() string
}
