// Package api implements the gRPC extraction service.
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/core/auth"
	"github.com/solatis/varextract/internal/core/config"
	"github.com/solatis/varextract/internal/namespace"
	"github.com/solatis/varextract/internal/rules"
	"github.com/solatis/varextract/internal/types"
)

// CollectionSource yields stored customer collections. Implemented by
// *db.CollectionStore.
type CollectionSource interface {
	LatestID(ctx context.Context, customerID string) (types.CollectionID, error)
	Load(ctx context.Context, customerID string) (*types.Collection, error)
}

type cachedEngine struct {
	id     types.CollectionID
	engine *rules.Engine
}

// ExtractionService serves extraction requests. Customers with a stored
// collection get an engine compiled from it; everyone else uses the base
// engine (built-in defaults or the configured mappings file).
type ExtractionService struct {
	base       *rules.Engine
	store      CollectionSource
	cfg        config.ServerConfig
	engineOpts []rules.Option
	compiler   *namespace.Compiler
	logger     *zap.Logger

	mu      sync.Mutex
	engines map[string]cachedEngine
}

// NewExtractionService creates the service. store may be nil, in which case
// every request uses base. engineOpts apply to per-customer engines.
func NewExtractionService(base *rules.Engine, store CollectionSource, cfg config.ServerConfig, logger *zap.Logger, engineOpts ...rules.Option) (*ExtractionService, error) {
	if base == nil {
		return nil, fmt.Errorf("base engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionService{
		base:       base,
		store:      store,
		cfg:        cfg,
		engineOpts: engineOpts,
		compiler:   namespace.NewCompiler(logger),
		logger:     logger,
		engines:    make(map[string]cachedEngine),
	}, nil
}

// engineFor returns the engine for the calling customer. A customer's engine
// is rebuilt when a newer collection has been stored.
func (s *ExtractionService) engineFor(ctx context.Context) (*rules.Engine, error) {
	customerID := auth.CustomerIDFromContext(ctx)
	if s.store == nil || customerID == "" {
		return s.base, nil
	}

	id, err := s.store.LatestID(ctx, customerID)
	if errors.Is(err, types.ErrCollectionNotFound) {
		return s.base, nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cached, ok := s.engines[customerID]
	s.mu.Unlock()
	if ok && cached.id == id {
		return cached.engine, nil
	}

	c, err := s.store.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	engine, err := rules.NewEngine(c, s.engineOpts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.engines[customerID] = cachedEngine{id: c.ID(), engine: engine}
	s.mu.Unlock()

	s.logger.Info("compiled customer collection",
		zap.String("customer_id", customerID),
		zap.String("collection_id", string(c.ID())),
		zap.String("version", c.Version()),
	)
	return engine, nil
}

// withTimeout bounds a request by the configured request timeout.
func (s *ExtractionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}
