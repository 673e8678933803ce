package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sap-order-agent/server/internal/agent/model"
)

// InMemoryRepository keeps memory events in process. Events are lost on restart.
type InMemoryRepository struct {
	mu     sync.RWMutex
	events map[string][]model.Event
	now    func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events: make(map[string][]model.Event),
		now:    time.Now,
	}
}

func sessionKey(actorID, sessionID string) string {
	return actorID + "\x00" + sessionID
}

func (r *InMemoryRepository) AppendTurn(ctx context.Context, actorID, sessionID string, role model.Role, text string) (string, error) {
	ev := model.Event{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey(actorID, sessionID)
	r.events[key] = append(r.events[key], ev)
	if n := len(r.events[key]); n > maxSessionEvents {
		r.events[key] = append([]model.Event(nil), r.events[key][n-maxSessionEvents:]...)
	}
	return ev.ID, nil
}

func (r *InMemoryRepository) LastKTurns(ctx context.Context, actorID, sessionID string, k int) ([]model.Turn, error) {
	r.mu.RLock()
	stored := r.events[sessionKey(actorID, sessionID)]
	events := make([]model.Event, len(stored))
	copy(events, stored)
	r.mu.RUnlock()

	return model.LastK(model.GroupTurns(events), k), nil
}

func (r *InMemoryRepository) ClearSession(ctx context.Context, actorID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, sessionKey(actorID, sessionID))
	return nil
}

var _ model.MemoryRepository = (*InMemoryRepository)(nil)
