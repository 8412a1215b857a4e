package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/janhq/chat-stream-api/internal/utils/idgen"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyActive = errors.New("session already attached")
)

// DefaultPendingTTL bounds how long a started session waits for an attach.
const DefaultPendingTTL = 5 * time.Minute

// Registry owns every in-flight session of this process.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*entry
	now        func() time.Time
	newID      func() (string, error)
	pendingTTL time.Duration
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithPendingTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.pendingTTL = ttl
		}
	}
}

func WithIDGenerator(newID func() (string, error)) Option {
	return func(r *Registry) { r.newID = newID }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:   make(map[string]*entry),
		now:        time.Now,
		newID:      idgen.NewSessionID,
		pendingTTL: DefaultPendingTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a pending session and returns its id.
func (r *Registry) Create(p PendingPayload) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		candidate, err := r.newID()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[candidate]; !taken {
			id = candidate
			break
		}
	}

	payload := p
	r.sessions[id] = &entry{
		id:        id,
		state:     StatePending,
		createdAt: r.now(),
		payload:   &payload,
	}
	return id, nil
}

func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// MarkActive moves a pending session to active and returns the data recorded
// at start. done must be closed by the caller once the generation has ended.
func (r *Registry) MarkActive(id string, cancel context.CancelFunc, done <-chan struct{}) (PendingPayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return PendingPayload{}, ErrNotFound
	}
	pending, ok := e.payload.(*PendingPayload)
	if !ok {
		return PendingPayload{}, ErrAlreadyActive
	}

	e.payload = &ActivePayload{
		PendingPayload: *pending,
		StartedAt:      r.now(),
		cancel:         cancel,
		done:           done,
	}
	e.state = StateActive
	return *pending, nil
}

// Cancel stops a session. A pending session is removed outright; an active
// one has its generation cancelled and is left for the attached stream to
// clean up. It returns the session as it was before cancelling, and false when
// the session is absent or its generation is already over.
func (r *Registry) Cancel(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, false
	}

	switch p := e.payload.(type) {
	case *PendingPayload:
		snap := e.snapshot()
		delete(r.sessions, id)
		return snap, true
	case *ActivePayload:
		if p.cancelled || p.finished() {
			return Snapshot{}, false
		}
		snap := e.snapshot()
		p.cancelled = true
		p.cancel()
		e.state = StateCancelled
		return snap, true
	}
	return Snapshot{}, false
}

// Remove deletes a session. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Sweep removes active sessions whose generation has finished without being
// removed, and pending sessions never attached within the pending TTL.
func (r *Registry) Sweep() int {
	return len(r.SweepExpired())
}

// SweepExpired is Sweep returning the removed sessions.
func (r *Registry) SweepExpired() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.pendingTTL)
	var removed []Snapshot
	for id, e := range r.sessions {
		switch p := e.payload.(type) {
		case *PendingPayload:
			if e.createdAt.Before(cutoff) {
				removed = append(removed, e.snapshot())
				delete(r.sessions, id)
			}
		case *ActivePayload:
			if p.finished() {
				removed = append(removed, e.snapshot())
				delete(r.sessions, id)
			}
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Counts returns the number of sessions per state.
func (r *Registry) Counts() map[State]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := map[State]int{StatePending: 0, StateActive: 0, StateCancelled: 0}
	for _, e := range r.sessions {
		counts[e.state]++
	}
	return counts
}
