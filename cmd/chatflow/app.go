package main

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/rendis/chatflow/internal/logging"
	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/internal/tributaries"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/tributary"
)

// app carries what every command needs. Flags write into cfg; setup runs
// once they are parsed.
type app struct {
	cfg    Config
	seed   uint64
	logger *slog.Logger
}

func newApp(cfg Config) *app {
	return &app{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
}

func (a *app) setup(stderr io.Writer) {
	if a.cfg.Mode != runtime.ModeCooperative {
		a.cfg.Mode = runtime.ModeBlocking
	}
	handler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logging.ParseLevel(a.cfg.LogLevel)})
	a.logger = slog.New(logging.NewCorrelationHandler(handler))
}

// registry returns the built-in tributaries plus those of the configured manifest.
func (a *app) registry() (*tributary.Registry, error) {
	var rng *rand.Rand
	if a.seed != 0 {
		rng = rand.New(rand.NewPCG(a.seed, a.seed))
	}
	reg := tributary.NewRegistry()
	if err := tributaries.RegisterBuiltins(reg, rng); err != nil {
		return nil, err
	}
	if a.cfg.Tributaries == "" {
		return reg, nil
	}
	loader, err := tributaries.NewLoader(a.logger)
	if err != nil {
		return nil, err
	}
	names, err := loader.LoadFile(a.cfg.Tributaries, reg)
	if err != nil {
		return nil, err
	}
	a.logger.Info("tributaries loaded", slog.String("manifest", a.cfg.Tributaries), slog.Int("count", len(names)))
	return reg, nil
}

// openStore opens and migrates the transcript database.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if dir := filepath.Dir(a.cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	s, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (a *app) runtimeOptions(extra ...runtime.Option) []runtime.Option {
	opts := []runtime.Option{runtime.WithLogger(a.logger), runtime.WithMaxDepth(a.cfg.MaxDepth)}
	return append(opts, extra...)
}
