package session

import (
	"context"
	"time"
)

// State is the lifecycle position of a stream session.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Payload is either *PendingPayload or *ActivePayload.
type Payload interface {
	pendingData() PendingPayload
}

// PendingPayload is everything start recorded for attach to pick up.
type PendingPayload struct {
	ConversationID     uint
	UserText           string
	UserMessageID      uint
	AssistantMessageID uint
	Prompt             string
	PromptTokens       int
	MaxTokens          int
}

func (p *PendingPayload) pendingData() PendingPayload { return *p }

// ActivePayload is a pending payload plus the handle of its running generation.
// It can only be built by the registry, so an active session always has a
// cancel func and a done channel.
type ActivePayload struct {
	PendingPayload
	StartedAt time.Time

	cancel    context.CancelFunc
	done      <-chan struct{}
	cancelled bool
}

func (a *ActivePayload) pendingData() PendingPayload { return a.PendingPayload }

func (a *ActivePayload) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Snapshot is a copy of a session safe to hand outside the registry.
type Snapshot struct {
	ID        string
	State     State
	CreatedAt time.Time
	StartedAt time.Time
	Data      PendingPayload
}

type entry struct {
	id        string
	state     State
	createdAt time.Time
	payload   Payload
}

func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		ID:        e.id,
		State:     e.state,
		CreatedAt: e.createdAt,
		Data:      e.payload.pendingData(),
	}
	if active, ok := e.payload.(*ActivePayload); ok {
		s.StartedAt = active.StartedAt
	}
	return s
}
