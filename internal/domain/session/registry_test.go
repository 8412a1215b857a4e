package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry() (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewRegistry(WithClock(clock.Now), WithPendingTTL(time.Minute)), clock
}

func samplePayload() PendingPayload {
	return PendingPayload{ConversationID: 7, UserText: "Hello", UserMessageID: 10, AssistantMessageID: 11, MaxTokens: 100}
}

func TestCreateAndGet(t *testing.T) {
	r, _ := newTestRegistry()

	id, err := r.Create(samplePayload())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatePending, snap.State)
	assert.Equal(t, uint(11), snap.Data.AssistantMessageID)
	assert.True(t, snap.StartedAt.IsZero())

	_, ok = r.Get("sess_missing")
	assert.False(t, ok)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	ids := []string{"sess_a", "sess_a", "sess_b"}
	i := 0
	r := NewRegistry(WithIDGenerator(func() (string, error) {
		id := ids[i]
		i++
		return id, nil
	}))

	first, err := r.Create(samplePayload())
	require.NoError(t, err)
	second, err := r.Create(samplePayload())
	require.NoError(t, err)

	assert.Equal(t, "sess_a", first)
	assert.Equal(t, "sess_b", second)
}

func TestMarkActive(t *testing.T) {
	r, _ := newTestRegistry()
	id, _ := r.Create(samplePayload())
	done := make(chan struct{})

	data, err := r.MarkActive(id, func() {}, done)
	require.NoError(t, err)
	assert.Equal(t, uint(7), data.ConversationID)

	snap, _ := r.Get(id)
	assert.Equal(t, StateActive, snap.State)
	assert.False(t, snap.StartedAt.IsZero())

	_, err = r.MarkActive(id, func() {}, done)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	_, err = r.MarkActive("sess_missing", func() {}, done)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelPendingRemoves(t *testing.T) {
	r, _ := newTestRegistry()
	id, _ := r.Create(samplePayload())

	snap, ok := r.Cancel(id)
	require.True(t, ok)
	assert.Equal(t, StatePending, snap.State)

	_, exists := r.Get(id)
	assert.False(t, exists)

	_, ok = r.Cancel(id)
	assert.False(t, ok, "second cancel must report absent")
}

func TestCancelActiveSignalsOnce(t *testing.T) {
	r, _ := newTestRegistry()
	id, _ := r.Create(samplePayload())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	_, err := r.MarkActive(id, cancel, done)
	require.NoError(t, err)

	snap, ok := r.Cancel(id)
	require.True(t, ok)
	assert.Equal(t, StateActive, snap.State)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel did not signal the generation context")
	}

	// cleanup stays with the attached stream
	current, exists := r.Get(id)
	require.True(t, exists)
	assert.Equal(t, StateCancelled, current.State)

	_, ok = r.Cancel(id)
	assert.False(t, ok, "already cancelled")

	close(done)
	r.Remove(id)
	_, exists = r.Get(id)
	assert.False(t, exists)
	r.Remove(id)
}

func TestCancelFinishedActiveReturnsFalse(t *testing.T) {
	r, _ := newTestRegistry()
	id, _ := r.Create(samplePayload())
	done := make(chan struct{})
	_, _ = r.MarkActive(id, func() { t.Error("cancel must not be invoked after completion") }, done)
	close(done)

	_, ok := r.Cancel(id)
	assert.False(t, ok)
}

func TestSweep(t *testing.T) {
	r, clock := newTestRegistry()

	stalePending, _ := r.Create(samplePayload())
	clock.Advance(30 * time.Second)
	freshPending, _ := r.Create(samplePayload())

	finished, _ := r.Create(samplePayload())
	finishedDone := make(chan struct{})
	_, _ = r.MarkActive(finished, func() {}, finishedDone)
	close(finishedDone)

	running, _ := r.Create(samplePayload())
	_, _ = r.MarkActive(running, func() {}, make(chan struct{}))

	clock.Advance(45 * time.Second)

	removed := r.SweepExpired()
	ids := make([]string, 0, len(removed))
	for _, s := range removed {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{stalePending, finished}, ids)

	_, ok := r.Get(freshPending)
	assert.True(t, ok)
	_, ok = r.Get(running)
	assert.True(t, ok)
	assert.Equal(t, 0, r.Sweep())
	assert.Equal(t, 2, r.Len())
}

func TestCounts(t *testing.T) {
	r, _ := newTestRegistry()
	_, _ = r.Create(samplePayload())
	id, _ := r.Create(samplePayload())
	_, _ = r.MarkActive(id, func() {}, make(chan struct{}))

	counts := r.Counts()
	assert.Equal(t, 1, counts[StatePending])
	assert.Equal(t, 1, counts[StateActive])
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := samplePayload()
			p.UserText = fmt.Sprintf("msg-%d", i)
			id, err := r.Create(p)
			if err != nil {
				t.Errorf("Create() error = %v", err)
				return
			}
			done := make(chan struct{})
			ctx, cancel := context.WithCancel(context.Background())
			if _, err := r.MarkActive(id, cancel, done); err != nil {
				t.Errorf("MarkActive() error = %v", err)
				return
			}
			r.Cancel(id)
			<-ctx.Done()
			close(done)
			r.Sweep()
			r.Remove(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
