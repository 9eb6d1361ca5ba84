package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agentharvest/pkg/logger"
)

// ErrPoolUnavailable indicates the credential service could not supply a
// proxy pool. Callers must not retry acquisition internally.
var ErrPoolUnavailable = errors.New("proxy pool unavailable")

// Rotator hands out identities round-robin across a pool that is filled
// lazily on first use and then held for the process lifetime. There is no
// health awareness: a consistently failing identity is served just as often
// as a healthy one.
type Rotator struct {
	provider Provider
	log      logger.Logger

	mu      sync.Mutex
	pool    []Identity
	counter uint64
	loaded  bool
}

// NewRotator creates a rotator backed by the given pool provider
func NewRotator(provider Provider) *Rotator {
	return &Rotator{
		provider: provider,
		log:      logger.GetLogger(),
	}
}

// Acquire returns the next identity in cyclic order, fetching the pool from
// the provider on the first call. A provider failure is returned wrapped in
// ErrPoolUnavailable; the pool is never refreshed once filled.
func (r *Rotator) Acquire(ctx context.Context) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		pool, err := r.provider.FetchPool(ctx)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrPoolUnavailable, err)
		}
		r.pool = pool
		r.loaded = true
		r.log.InfoWithFields("identity pool initialized", map[string]interface{}{
			"pool_size": len(pool),
		})
	}

	idx := r.counter % uint64(len(r.pool))
	r.counter++
	return r.pool[idx], nil
}

// PoolSize reports the size of the loaded pool, zero before first Acquire
func (r *Rotator) PoolSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool)
}
