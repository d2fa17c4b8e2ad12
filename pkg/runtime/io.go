package runtime

import (
	"context"
	"time"

	"github.com/rendis/chatflow/pkg/flow"
)

// Mode names an IO strategy.
const (
	ModeBlocking    = "blocking"
	ModeCooperative = "cooperative"
)

// IO connects a run to the conversation partner. Listen with a positive
// timeout reports ok=false when no value arrived in time; without a timeout
// ok=false means the partner produced no value at all.
type IO interface {
	Mode() string
	Speak(ctx context.Context, message string) error
	Listen(ctx context.Context, timeout time.Duration) (string, bool, error)
}

// Blocking runs host calls to completion on the run goroutine. A timed
// listen receives the timeout and is expected to give up on its own.
// Nil functions are replaced by no-ops.
func Blocking(speak flow.SpeakFunc, listen flow.ListenFunc) IO {
	return &blockingIO{speak: orSilent(speak), listen: orDeaf(listen)}
}

// Cooperative runs a timed listen on its own goroutine and races it
// against a timer. The loser is cancelled and a late value is dropped.
// Nil functions are replaced by no-ops.
func Cooperative(speak flow.SpeakFunc, listen flow.ListenFunc) IO {
	return &cooperativeIO{speak: orSilent(speak), listen: orDeaf(listen)}
}

// ParseMode returns the strategy for mode, defaulting to Blocking.
func ParseMode(mode string, speak flow.SpeakFunc, listen flow.ListenFunc) IO {
	if mode == ModeCooperative {
		return Cooperative(speak, listen)
	}
	return Blocking(speak, listen)
}

type blockingIO struct {
	speak  flow.SpeakFunc
	listen flow.ListenFunc
}

func (b *blockingIO) Mode() string { return ModeBlocking }

func (b *blockingIO) Speak(ctx context.Context, message string) error {
	return b.speak(ctx, message)
}

func (b *blockingIO) Listen(ctx context.Context, timeout time.Duration) (string, bool, error) {
	return b.listen(ctx, timeout)
}

type cooperativeIO struct {
	speak  flow.SpeakFunc
	listen flow.ListenFunc
}

func (c *cooperativeIO) Mode() string { return ModeCooperative }

func (c *cooperativeIO) Speak(ctx context.Context, message string) error {
	return c.speak(ctx, message)
}

type listenResult struct {
	value string
	ok    bool
	err   error
}

func (c *cooperativeIO) Listen(ctx context.Context, timeout time.Duration) (string, bool, error) {
	if timeout <= 0 {
		return c.listen(ctx, 0)
	}

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan listenResult, 1)
	go func() {
		v, ok, err := c.listen(lctx, 0)
		done <- listenResult{value: v, ok: ok, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.ok, r.err
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func orSilent(fn flow.SpeakFunc) flow.SpeakFunc {
	if fn != nil {
		return fn
	}
	return func(context.Context, string) error { return nil }
}

func orDeaf(fn flow.ListenFunc) flow.ListenFunc {
	if fn != nil {
		return fn
	}
	return func(context.Context, time.Duration) (string, bool, error) { return "", false, nil }
}
