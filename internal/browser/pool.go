package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/scrapper/internal/metrics"
)

// DefaultLimit is the session limit used when none is configured.
const DefaultLimit = 20

// Pool bounds the number of live browser sessions. Waiters are served in FIFO
// order and give up when their context ends.
type Pool struct {
	sem     *semaphore.Weighted
	limit   int
	inUse   atomic.Int64
	factory SessionFactory
	logger  *zap.Logger
}

// NewPool returns a pool creating sessions with factory, at most limit at a time.
func NewPool(factory SessionFactory, limit int, logger *zap.Logger) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("session limit must be > 0, got %d", limit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(limit)),
		limit:   limit,
		factory: factory,
		logger:  logger,
	}, nil
}

// Permit is one held session slot.
type Permit struct {
	pool *Pool
	once sync.Once
}

// Release returns the slot. Extra calls are no-ops.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.pool.inUse.Add(-1)
		p.pool.sem.Release(1)
		metrics.ObservePoolRelease()
	})
}

// Acquire blocks until a slot is free or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (*Permit, error) {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire session slot: %w", err)
	}
	p.inUse.Add(1)
	metrics.ObservePoolAcquire(time.Since(start))
	return &Permit{pool: p}, nil
}

// WithSession runs fn against a fresh session. The session is closed before the
// slot is released on every path, including errors and panics in fn.
func (p *Pool) WithSession(ctx context.Context, opts SessionOptions, fn func(ctx context.Context, page Page) error) error {
	permit, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer permit.Release()

	session, err := p.factory.NewSession(ctx, opts)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.logger.Warn("session teardown failed", zap.Error(cerr))
		}
	}()

	return fn(ctx, session)
}

// Limit is the configured maximum number of sessions.
func (p *Pool) Limit() int {
	return p.limit
}

// InUse is the number of slots currently held.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}
