package rules

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/types"
)

// Observer receives one notification per variable extraction attempt.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveExtraction(variable string, result Result)
	ObserveRecursionLimit(variable string)
}

// Engine evaluates records against a compiled mapping collection.
// The collection is replaced wholesale by Swap; in-flight calls keep the
// snapshot they started with.
type Engine struct {
	compiled     atomic.Pointer[CompiledCollection]
	logger       *zap.Logger
	observer     Observer
	maxDepth     int
	filterPolicy FilterPolicy
	workers      int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver attaches an extraction observer (metrics).
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithMaxDepth bounds nested variable resolution. Values < 1 keep the default.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithFilterPolicy sets how unsupported filter conditions evaluate.
func WithFilterPolicy(p FilterPolicy) Option {
	return func(e *Engine) { e.filterPolicy = p }
}

// WithWorkers bounds ExtractRecords parallelism. Values < 1 use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine compiles the collection and returns a ready engine.
func NewEngine(c *types.Collection, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:       zap.NewNop(),
		maxDepth:     types.DefaultMaxRecursionDepth,
		filterPolicy: FilterPolicyPass,
		workers:      runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Swap(c); err != nil {
		return nil, err
	}
	return e, nil
}

// Swap compiles c and atomically replaces the active collection.
// On error the previous collection stays active.
func (e *Engine) Swap(c *types.Collection) error {
	compiled, err := Compile(c)
	if err != nil {
		return err
	}
	e.compiled.Store(compiled)
	e.logger.Info("mapping collection activated",
		zap.String("version", c.Version()),
		zap.String("collection_id", string(c.ID())),
		zap.Int("variables", c.Len()),
	)
	return nil
}

// Collection returns the active collection.
func (e *Engine) Collection() *types.Collection {
	return e.compiled.Load().Collection
}
