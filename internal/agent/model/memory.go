package model

import (
	"context"
	"time"
)

// Role identifies who produced a memory event.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Event is one stored message of a conversation.
type Event struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is a user event followed by the assistant events answering it.
type Turn []Event

type MemoryRepository interface {
	// AppendTurn stores one message for (actor, session) and returns its event ID.
	AppendTurn(ctx context.Context, actorID, sessionID string, role Role, text string) (string, error)

	// LastKTurns returns up to k most recent turns, oldest first.
	LastKTurns(ctx context.Context, actorID, sessionID string, k int) ([]Turn, error)

	// ClearSession drops all events of (actor, session).
	ClearSession(ctx context.Context, actorID, sessionID string) error
}

// GroupTurns splits an ordered event log into turns. Assistant events
// before the first user event form a turn of their own.
func GroupTurns(events []Event) []Turn {
	var turns []Turn
	for _, ev := range events {
		if ev.Role == RoleUser || len(turns) == 0 {
			turns = append(turns, Turn{ev})
			continue
		}
		turns[len(turns)-1] = append(turns[len(turns)-1], ev)
	}
	return turns
}

// LastK keeps the final k turns.
func LastK(turns []Turn, k int) []Turn {
	if k <= 0 {
		return nil
	}
	if len(turns) <= k {
		return turns
	}
	return turns[len(turns)-k:]
}
