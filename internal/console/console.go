// Package console is the default conversation partner for the CLI: it
// speaks to a writer and listens to lines read from a reader.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rendis/chatflow/pkg/schema"
)

// Console pairs an output writer with a line reader. A single goroutine
// reads lines ahead so a timed-out listen does not lose the line typed
// after it; that line answers the next listen.
type Console struct {
	out    io.Writer
	prompt string
	logger *slog.Logger

	mu    sync.Mutex
	lines chan string
	errc  chan error
	once  sync.Once
	in    io.Reader
}

// Option configures a Console.
type Option func(*Console)

// WithPrompt prints p before every listen.
func WithPrompt(p string) Option {
	return func(c *Console) { c.prompt = p }
}

// WithLogger sets the logger used for read diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a console over in and out.
func New(in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		in:     in,
		out:    out,
		logger: slog.Default(),
		lines:  make(chan string),
		errc:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) start() {
	c.once.Do(func() {
		go func() {
			sc := bufio.NewScanner(c.in)
			for sc.Scan() {
				c.lines <- strings.TrimRight(sc.Text(), "\r")
			}
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			c.errc <- err
			close(c.lines)
		}()
	})
}

// Speak writes message followed by a newline.
func (c *Console) Speak(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.out, message); err != nil {
		return schema.NewError(schema.ErrCodeIO, "write to console").WithCause(err)
	}
	return nil
}

// Listen waits for the next line. With a positive timeout it reports no
// value once the timeout elapses. End of input is an IO_ERROR.
func (c *Console) Listen(ctx context.Context, timeout time.Duration) (string, bool, error) {
	c.start()
	if c.prompt != "" {
		c.mu.Lock()
		_, _ = io.WriteString(c.out, c.prompt)
		c.mu.Unlock()
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", false, c.readErr()
		}
		return line, true, nil
	case <-expired:
		c.logger.Debug("console listen timed out", slog.Duration("timeout", timeout))
		return "", false, nil
	case <-ctx.Done():
		return "", false, schema.NewError(schema.ErrCodeCancelled, "listen cancelled").WithCause(ctx.Err())
	}
}

func (c *Console) readErr() error {
	var err error
	select {
	case err = <-c.errc:
		c.errc <- err
	default:
		err = io.EOF
	}
	return schema.NewError(schema.ErrCodeIO, "console input closed").WithCause(err)
}
