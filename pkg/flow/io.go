package flow

import (
	"context"
	"time"
)

// SpeakFunc emits a message to the conversation partner.
type SpeakFunc func(ctx context.Context, message string) error

// ListenFunc reads one input from the conversation partner. A zero timeout
// means wait indefinitely. ok is false when no value was received, for
// example because the deadline passed or the input stream closed.
type ListenFunc func(ctx context.Context, timeout time.Duration) (value string, ok bool, err error)
