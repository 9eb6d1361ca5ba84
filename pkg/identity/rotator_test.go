package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider serves a fixed pool and counts fetches
type stubProvider struct {
	pool    []Identity
	err     error
	fetches int
}

func (s *stubProvider) FetchPool(ctx context.Context) ([]Identity, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.pool, nil
}

func makePool(n int) []Identity {
	pool := make([]Identity, n)
	for i := range pool {
		pool[i] = Identity{
			Address:  fmt.Sprintf("10.0.0.%d", i+1),
			Port:     8000 + i,
			Username: fmt.Sprintf("user%d", i),
			Password: "secret",
		}
	}
	return pool
}

func TestRotatorRoundRobin(t *testing.T) {
	const n = 4
	provider := &stubProvider{pool: makePool(n)}
	rotator := NewRotator(provider)
	ctx := context.Background()

	// N consecutive acquires return N distinct identities in pool order
	seen := make([]Identity, n)
	for i := 0; i < n; i++ {
		id, err := rotator.Acquire(ctx)
		require.NoError(t, err)
		seen[i] = id
		assert.Equal(t, provider.pool[i], id)
	}

	// The (N+1)-th acquire repeats the first
	id, err := rotator.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, seen[0], id)
}

func TestRotatorFetchesPoolExactlyOnce(t *testing.T) {
	provider := &stubProvider{pool: makePool(2)}
	rotator := NewRotator(provider)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := rotator.Acquire(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, provider.fetches)
	assert.Equal(t, 2, rotator.PoolSize())
}

func TestRotatorPoolUnavailable(t *testing.T) {
	provider := &stubProvider{err: errors.New("service down")}
	rotator := NewRotator(provider)

	_, err := rotator.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoolUnavailable))
	assert.Equal(t, 0, rotator.PoolSize())
}

func TestHeaderRotatorCycles(t *testing.T) {
	rotator := NewHeaderRotator()
	n := rotator.ProfileCount()
	require.Greater(t, n, 1)

	agents := make([]string, 0, n)
	for i := 0; i < n; i++ {
		headers := rotator.Next()
		require.NotEmpty(t, headers["User-Agent"])
		agents = append(agents, headers["User-Agent"])
	}

	// All profiles distinct, then the cycle repeats
	unique := make(map[string]bool)
	for _, ua := range agents {
		unique[ua] = true
	}
	assert.Len(t, unique, n)

	again := rotator.Next()
	assert.Equal(t, agents[0], again["User-Agent"])
}

func TestHeaderRotatorChromiumClientHints(t *testing.T) {
	rotator := NewHeaderRotatorWithProfiles(nil) // falls back to defaults

	sawClientHints := false
	sawWithout := false
	for i := 0; i < rotator.ProfileCount(); i++ {
		headers := rotator.Next()
		if _, ok := headers["Sec-Ch-Ua"]; ok {
			sawClientHints = true
		} else {
			sawWithout = true
		}
	}
	assert.True(t, sawClientHints, "chromium profiles should carry client hints")
	assert.True(t, sawWithout, "non-chromium profiles should not carry client hints")
}

func TestHeaderRotatorReturnsFreshCopy(t *testing.T) {
	rotator := NewHeaderRotator()

	first := rotator.Next()
	first["User-Agent"] = "mutated"

	// Advance a full cycle back to the same profile
	for i := 0; i < rotator.ProfileCount()-1; i++ {
		rotator.Next()
	}
	second := rotator.Next()
	assert.NotEqual(t, "mutated", second["User-Agent"])
}
