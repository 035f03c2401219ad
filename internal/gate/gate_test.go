package gate

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryEnterRejectsSecondCaller(t *testing.T) {
	var g Gate

	first, ok := g.TryEnter()
	require.True(t, ok)
	assert.True(t, g.Busy())

	_, ok = g.TryEnter()
	assert.False(t, ok, "second caller must be rejected while busy")

	first.Leave()
	assert.False(t, g.Busy())

	again, ok := g.TryEnter()
	require.True(t, ok)
	again.Leave()
}

func TestInvalidateMakesTicketStale(t *testing.T) {
	var g Gate

	ticket, ok := g.TryEnter()
	require.True(t, ok)
	assert.True(t, ticket.Current())

	g.Invalidate()
	assert.False(t, ticket.Current())
	assert.True(t, g.Busy(), "invalidate must not release the holder")

	ticket.Leave()
	next, ok := g.TryEnter()
	require.True(t, ok)
	assert.True(t, next.Current())
	next.Leave()
}

func TestZeroTicketIsInert(t *testing.T) {
	var ticket Ticket
	ticket.Leave()
	assert.False(t, ticket.Current())
}

func TestLeaveTwiceReleasesOnce(t *testing.T) {
	var g Gate

	first, ok := g.TryEnter()
	require.True(t, ok)
	first.Leave()

	second, ok := g.TryEnter()
	require.True(t, ok)
	first.Leave()
	assert.True(t, g.Busy(), "a stale Leave must not release another holder")

	second.Leave()
	assert.False(t, g.Busy())
}

func TestConcurrentTryEnterAdmitsOne(t *testing.T) {
	var (
		g        Gate
		admitted atomic.Int64
		start    = make(chan struct{})
		wg       sync.WaitGroup
	)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryEnter(); ok {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), admitted.Load())
}
