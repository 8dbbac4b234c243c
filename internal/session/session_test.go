package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajj/internal/engine"
	"ajj/internal/session"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	eng := engine.New()
	pool := session.NewPool(eng, 2)
	assert.EqualValues(t, 2, pool.Capacity())

	ctx := context.Background()
	s1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	s2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.ActiveCount())

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(tctx)
	assert.Error(t, err, "third acquire should block until a slot frees")

	pool.Release(s1)
	pool.Release(s2)
	assert.Equal(t, 0, pool.ActiveCount())
}

func TestWithSessionRendersAndReleases(t *testing.T) {
	eng := engine.New()
	pool := session.NewPool(eng, 1)
	sink := engine.NewBufferSink()

	var ran int32
	err := pool.WithSession(context.Background(), func(s *session.Session) error {
		atomic.AddInt32(&ran, 1)
		return s.RenderData(sink, "hi there", "greeting")
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, ran)
	assert.Equal(t, 0, pool.ActiveCount())

	out, err := sink.Content()
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestReleaseIsIdempotent(t *testing.T) {
	eng := engine.New()
	pool := session.NewPool(eng, 1)
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(s)
	pool.Release(s)
	assert.Equal(t, 0, pool.ActiveCount())
}
