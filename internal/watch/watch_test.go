package watch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeIsPrimedWithCurrentValue(t *testing.T) {
	v := New(7)
	ch, cancel := v.Subscribe()
	defer cancel()

	assert.Equal(t, 7, <-ch)
}

func TestSlowSubscriberSeesLatestOnly(t *testing.T) {
	v := New("unknown")
	ch, cancel := v.Subscribe()
	defer cancel()

	v.Store("a")
	v.Store("b")
	v.Store("c")

	assert.Equal(t, "c", <-ch)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra value %q", extra)
	default:
	}
}

func TestUpdateIsAtomic(t *testing.T) {
	v := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, v.Load())
}

func TestCancelAndCloseCloseChannels(t *testing.T) {
	v := New(1)

	ch1, cancel1 := v.Subscribe()
	<-ch1
	cancel1()
	cancel1()
	_, open := <-ch1
	assert.False(t, open, "cancel must close the channel")

	ch2, _ := v.Subscribe()
	<-ch2
	v.Close()
	_, open = <-ch2
	assert.False(t, open, "Close must close remaining channels")

	v.Store(2)
	assert.Equal(t, 2, v.Load())

	ch3, cancel3 := v.Subscribe()
	_, open = <-ch3
	require.False(t, open, "subscribing after Close yields a closed channel")
	cancel3()
}
