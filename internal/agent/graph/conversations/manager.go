package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/sap-order-agent/server/internal/agent/graph/prompts"
	"github.com/sap-order-agent/server/internal/agent/model"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

// MessagesManager connects the agent run to conversation memory: recent
// turns go into the system prompt, user and final assistant texts are stored.
// A nil repository disables memory.
type MessagesManager struct {
	memoryRepo model.MemoryRepository
	lastK      int
}

func NewMessagesManager(memoryRepo model.MemoryRepository, config model.MemoryConfig) *MessagesManager {
	return &MessagesManager{
		memoryRepo: memoryRepo,
		lastK:      config.LastK,
	}
}

func (mm *MessagesManager) Enabled() bool {
	return mm != nil && mm.memoryRepo != nil
}

// BuildContext returns the system message followed by the user query. The
// recall happens before the query is stored, so the query is never echoed
// back as history. Memory failures are logged and the run goes on without it.
func (mm *MessagesManager) BuildContext(ctx context.Context, in model.QueryInput, systemPrompt string) ([]*schema.Message, error) {
	if mm.Enabled() && mm.lastK > 0 {
		turns, err := mm.memoryRepo.LastKTurns(ctx, in.ActorID, in.SessionID, mm.lastK)
		if err != nil {
			logx.Warn().Err(err).
				Str("actor_id", in.ActorID).
				Str("session_id", in.SessionID).
				Msg("memory load failed; continuing without history")
		} else if len(turns) > 0 {
			systemPrompt += prompts.RecentConversation(turns)
			logx.Debug().Int("turns", len(turns)).Str("session_id", in.SessionID).Msg("loaded conversation turns")
		}
	}

	if err := mm.save(ctx, in.ActorID, in.SessionID, model.RoleUser, in.Query); err != nil {
		logx.Warn().Err(err).Str("session_id", in.SessionID).Msg("memory save failed for user message")
	}

	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(in.Query),
	}, nil
}

// SaveResponse stores a final assistant text.
func (mm *MessagesManager) SaveResponse(ctx context.Context, actorID, sessionID, content string) error {
	return mm.save(ctx, actorID, sessionID, model.RoleAssistant, content)
}

func (mm *MessagesManager) save(ctx context.Context, actorID, sessionID string, role model.Role, text string) error {
	if !mm.Enabled() || strings.TrimSpace(text) == "" {
		return nil
	}
	eventID, err := mm.memoryRepo.AppendTurn(ctx, actorID, sessionID, role, text)
	if err != nil {
		return err
	}
	logx.Debug().
		Str("event_id", eventID).
		Str("role", string(role)).
		Str("session_id", sessionID).
		Msg("stored memory event")
	return nil
}
