package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPool(nil, 1, nil)
	require.Error(t, err)
	_, err = NewPool(&fakeFactory{}, 0, nil)
	require.Error(t, err)

	pool, err := NewPool(&fakeFactory{}, DefaultLimit, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, pool.Limit())
	assert.Zero(t, pool.InUse())
}

func TestAcquireWaitsInsteadOfFailing(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(&fakeFactory{}, 1, nil)
	require.NoError(t, err)

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan *Permit)
	go func() {
		p, err := pool.Acquire(context.Background())
		if err == nil {
			acquired <- p
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should wait while the only slot is held")
	case <-time.After(30 * time.Millisecond):
	}

	held.Release()
	held.Release()
	select {
	case p := <-acquired:
		assert.Equal(t, 1, pool.InUse())
		p.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter was not served after release")
	}
	assert.Zero(t, pool.InUse())
}

func TestAcquireHonoursCallerDeadline(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(&fakeFactory{}, 1, nil)
	require.NoError(t, err)
	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, pool.InUse())
}

func TestWithSessionBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const limit = 3
	pool, err := NewPool(&fakeFactory{}, limit, nil)
	require.NoError(t, err)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.WithSession(context.Background(), SessionOptions{}, func(context.Context, Page) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Zero(t, pool.InUse())
}

func TestWithSessionTearsDownBeforeRelease(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	pool, err := NewPool(factory, 2, nil)
	require.NoError(t, err)

	var inUseAtClose atomic.Int64
	factory.onClose = func() { inUseAtClose.Store(int64(pool.InUse())) }

	boom := errors.New("boom")
	err = pool.WithSession(context.Background(), SessionOptions{}, func(context.Context, Page) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Len(t, factory.sessions, 1)
	assert.Equal(t, 1, factory.sessions[0].closed)
	assert.Equal(t, int64(1), inUseAtClose.Load())
	assert.Zero(t, pool.InUse())
}

func TestWithSessionReleasesOnPanic(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	pool, err := NewPool(factory, 1, nil)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = pool.WithSession(context.Background(), SessionOptions{}, func(context.Context, Page) error {
			panic("page exploded")
		})
	})
	require.Len(t, factory.sessions, 1)
	assert.Equal(t, 1, factory.sessions[0].closed)
	assert.Zero(t, pool.InUse())
}

func TestWithSessionFactoryFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(&fakeFactory{err: errors.New("no browser")}, 1, nil)
	require.NoError(t, err)

	called := false
	err = pool.WithSession(context.Background(), SessionOptions{}, func(context.Context, Page) error {
		called = true
		return nil
	})
	require.ErrorContains(t, err, "create session: no browser")
	assert.False(t, called)
	assert.Zero(t, pool.InUse())
}
