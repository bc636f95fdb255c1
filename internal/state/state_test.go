package state_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankr-ai/assistant-client/internal/state"
)

type counters struct {
	A int
	B int
}

func TestGetReturnsInitial(t *testing.T) {
	h := state.NewHolder(counters{A: 1})
	assert.Equal(t, counters{A: 1}, h.Get())
}

func TestCommitPublishesOncePerOp(t *testing.T) {
	h := state.NewHolder(counters{})
	updates, cancel := h.Subscribe()
	defer cancel()

	h.BeginOp()
	h.Stage(func(c *counters) { c.A = 1 })
	h.Stage(func(c *counters) { c.B = 2 })
	h.Commit()
	h.EndOp()

	got := <-updates
	assert.Equal(t, counters{A: 1, B: 2}, got)
	assert.Empty(t, updates)
}

func TestUncommittedStagingIsDiscarded(t *testing.T) {
	h := state.NewHolder(counters{A: 1})

	h.BeginOp()
	h.Stage(func(c *counters) { c.A = 99 })
	h.EndOp()

	assert.Equal(t, counters{A: 1}, h.Get())

	// The next op starts from committed state, not the abandoned staging.
	h.BeginOp()
	assert.Equal(t, counters{A: 1}, h.Staged())
	h.EndOp()
}

func TestCancelStopsDelivery(t *testing.T) {
	h := state.NewHolder(counters{})
	updates, cancel := h.Subscribe()
	cancel()
	cancel() // safe to call twice

	h.BeginOp()
	h.Stage(func(c *counters) { c.A = 1 })
	h.Commit()
	h.EndOp()

	_, ok := <-updates
	assert.False(t, ok)
}

func TestSlowSubscriberDoesNotBlockCommit(t *testing.T) {
	h := state.NewHolder(counters{})
	updates, cancel := h.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; commits must not block.
	for i := 0; i < 100; i++ {
		h.BeginOp()
		h.Stage(func(c *counters) { c.A++ })
		h.Commit()
		h.EndOp()
	}

	assert.Equal(t, 100, h.Get().A)
	// The first buffered snapshots are intact even though later ones
	// were dropped.
	first := <-updates
	assert.Equal(t, 1, first.A)
}

func TestConcurrentOpsSerialize(t *testing.T) {
	h := state.NewHolder(counters{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.BeginOp()
			h.Stage(func(c *counters) { c.A++ })
			h.Commit()
			h.EndOp()
		}()
	}
	wg.Wait()

	require.Equal(t, 50, h.Get().A)
}
