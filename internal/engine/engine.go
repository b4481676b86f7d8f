package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// DefaultWorkers is the default size of the RunDueJobs worker pool.
const DefaultWorkers = 4

// Engine coordinates deployments, versioning, instance starts, jobs,
// suspension and history for every tenant sharing one store.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	store   *store.Store
	seq     *Sequence
	ids     IDGenerator
	now     func() time.Time
	logger  *zap.Logger
	metrics *Metrics
	history model.HistoryLevel
	workers int
	locks   *partitionLocks

	// processModels caches compiled process models by definition ID.
	// Definitions are immutable, so entries never go stale.
	processModels sync.Map
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the entity ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithNow sets the wall-clock source used for timestamps and due dates.
// Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithHistoryLevel sets how much the history mirror records.
// Default: model.HistoryAudit.
func WithHistoryLevel(level model.HistoryLevel) Option {
	return func(e *Engine) {
		e.history = level
	}
}

// WithMetrics sets the metrics sink. Default: metrics registered with a
// private registry, so nothing is exported.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithWorkers sets the size of the RunDueJobs worker pool.
// Default: 4 (DefaultWorkers).
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// New creates an Engine over s. Seq numbering resumes after the highest
// seq already stored.
func New(ctx context.Context, s *store.Store, opts ...Option) (*Engine, error) {
	maxSeq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	e := &Engine{
		store:   s,
		seq:     newSequence(maxSeq),
		ids:     UUIDv7Generator{},
		now:     time.Now,
		logger:  zap.NewNop(),
		history: model.HistoryAudit,
		workers: DefaultWorkers,
		locks:   newPartitionLocks(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if !model.ValidHistoryLevels[e.history] {
		return nil, fmt.Errorf("new engine: invalid history level %q", e.history)
	}
	if e.workers < 1 {
		e.workers = 1
	}

	return e, nil
}

// Store returns the underlying store for queries.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Sequence returns the seq source stamping every written row.
func (e *Engine) Sequence() *Sequence {
	return e.seq
}

// timestamp returns the current wall time in UTC.
func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}
