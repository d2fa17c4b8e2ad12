// Package flowtest runs ChatFlow scripts against scripted input and records
// what they say. It backs unit tests and the simulate surfaces.
package flowtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/tributary"
)

// ErrNoMoreInput is returned by Stub.Listen once every scripted input was consumed.
var ErrNoMoreInput = errors.New("flowtest: no more scripted input")

// ErrSpeakLimit is returned by Stub.Speak once the stub recorded its limit.
var ErrSpeakLimit = errors.New("flowtest: spoken message limit reached")

// Say returns a pointer to s for use in an input list.
func Say(s string) *string { return &s }

// Inputs builds an input list from strings.
func Inputs(values ...string) []*string {
	out := make([]*string, len(values))
	for i := range values {
		out[i] = Say(values[i])
	}
	return out
}

// Stub is a scripted conversation partner. Each listen consumes the next
// input; a nil input means the partner stayed silent, which a bounded
// listen sees as a timeout.
type Stub struct {
	mu       sync.Mutex
	inputs   []*string
	next     int
	spoken   []string
	limit    int
	timeouts []time.Duration
}

// NewStub creates a Stub that answers with inputs in order.
func NewStub(inputs []*string) *Stub {
	return &Stub{inputs: inputs}
}

// LimitSpoken makes Speak fail once n messages were recorded. Zero means no limit.
func (s *Stub) LimitSpoken(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = n
}

// Speak records message.
func (s *Stub) Speak(_ context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.spoken) >= s.limit {
		return ErrSpeakLimit
	}
	s.spoken = append(s.spoken, message)
	return nil
}

// Listen returns the next scripted input.
func (s *Stub) Listen(ctx context.Context, timeout time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeouts = append(s.timeouts, timeout)
	if s.next >= len(s.inputs) {
		return "", false, ErrNoMoreInput
	}
	in := s.inputs[s.next]
	s.next++
	if in == nil {
		return "", false, nil
	}
	return *in, true, nil
}

// Spoken returns a copy of every recorded message.
func (s *Stub) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// Consumed returns how many inputs were read.
func (s *Stub) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Timeouts returns the timeout passed to each Listen call.
func (s *Stub) Timeouts() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.timeouts))
	copy(out, s.timeouts)
	return out
}

// Result summarises a simulated run.
type Result struct {
	RunID      string   `json:"run_id"`
	Spoken     []string `json:"spoken"`
	Consumed   int      `json:"consumed"`
	Terminated bool     `json:"terminated"`
}

type config struct {
	mode      string
	maxSpoken int
	opts      []runtime.Option
}

// Option configures Run.
type Option func(*config)

// WithMode selects the IO strategy (runtime.ModeBlocking or runtime.ModeCooperative).
func WithMode(mode string) Option {
	return func(c *config) { c.mode = mode }
}

// WithMaxSpoken fails the run with IO_ERROR once n messages were spoken.
func WithMaxSpoken(n int) Option {
	return func(c *config) { c.maxSpoken = n }
}

// WithRuntimeOptions passes options through to runtime.New.
func WithRuntimeOptions(opts ...runtime.Option) Option {
	return func(c *config) { c.opts = append(c.opts, opts...) }
}

// Run loads src and runs its origin flow against inputs. The result holds
// everything spoken up to the point of failure, even when err is non-nil.
func Run(ctx context.Context, src string, inputs []*string, reg *tributary.Registry, opts ...Option) (*Result, error) {
	flows, err := runtime.Load(src)
	if err != nil {
		return nil, err
	}
	return RunFlows(ctx, flows, inputs, reg, opts...)
}

// RunFlows is Run over already loaded flows.
func RunFlows(ctx context.Context, flows *runtime.Flows, inputs []*string, reg *tributary.Registry, opts ...Option) (*Result, error) {
	cfg := config{mode: runtime.ModeBlocking}
	for _, opt := range opts {
		opt(&cfg)
	}

	stub := NewStub(inputs)
	stub.LimitSpoken(cfg.maxSpoken)
	rt := runtime.New(flows, reg, runtime.ParseMode(cfg.mode, stub.Speak, stub.Listen), cfg.opts...)
	runErr := rt.Run(ctx)

	return &Result{
		RunID:      rt.LastRunID(),
		Spoken:     stub.Spoken(),
		Consumed:   stub.Consumed(),
		Terminated: rt.Terminated(),
	}, runErr
}

// Expect runs src and reports whether it spoke exactly expected. A mismatch
// error carries a diff of the transcripts.
func Expect(ctx context.Context, src string, inputs []*string, expected []string, reg *tributary.Registry, opts ...Option) error {
	res, err := Run(ctx, src, inputs, reg, opts...)
	if err != nil {
		return err
	}
	if diff := cmp.Diff(expected, res.Spoken, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("flowtest: transcript mismatch (-want +got):\n%s", diff)
	}
	return nil
}
