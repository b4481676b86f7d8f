package cli

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/tenantry/internal/engine"
	"github.com/roach88/tenantry/internal/store"
)

// env is an opened store and engine for one command.
type env struct {
	store  *store.Store
	engine *engine.Engine
	logger *zap.Logger
}

// openEnv opens the configured store and builds an engine over it. reg
// receives the engine metrics; pass nil when nothing scrapes them.
func openEnv(ctx context.Context, opts *RootOptions, reg prometheus.Registerer) (*env, error) {
	cfg, err := opts.settings()
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		_ = logger.Sync()
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	eng, err := engine.New(ctx, st,
		engine.WithLogger(logger),
		engine.WithHistoryLevel(cfg.History.Level),
		engine.WithWorkers(cfg.Jobs.Workers),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)
	if err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	logger.Debug("database ready", zap.String("path", cfg.Store.Path))
	return &env{store: st, engine: eng, logger: logger}, nil
}

// Close closes the store and flushes the logger.
func (e *env) Close() error {
	err := e.store.Close()
	// Sync on stderr fails on some platforms; only the store error matters.
	_ = e.logger.Sync()
	return err
}
