package entrypoint

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sap-order-agent/server/internal/agent/graph"
	"github.com/sap-order-agent/server/internal/agent/model"
	"github.com/sap-order-agent/server/internal/agent/repo"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

// DefaultActorID is used when a payload names no actor.
const DefaultActorID = "user"

var errEmptyPrompt = errors.New("prompt is required")

// Payload is one invocation of the agent.
type Payload struct {
	Prompt    string `json:"prompt"`
	ActorID   string `json:"actor_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	MemoryID  string `json:"memory_id,omitempty"`
}

// Response carries the reply and the identifiers to continue the conversation with.
type Response struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	ActorID   string `json:"actor_id"`
}

// Handler turns payloads into agent runs. Failures are reported inside the
// response text, never as a Go error.
type Handler struct {
	runner   graph.Runner
	memoryID string
	now      func() time.Time
}

func NewHandler(runner graph.Runner, memoryID string) *Handler {
	return &Handler{runner: runner, memoryID: memoryID, now: time.Now}
}

func (h *Handler) Handle(ctx context.Context, p Payload) Response {
	actorID := strings.TrimSpace(p.ActorID)
	if actorID == "" {
		actorID = DefaultActorID
	}
	sessionID := strings.TrimSpace(p.SessionID)
	if sessionID == "" {
		sessionID = repo.GenerateSessionID(actorID, h.now())
		logx.Info().Str("actor_id", actorID).Str("session_id", sessionID).Msg("new session")
	}
	if p.MemoryID != "" && p.MemoryID != h.memoryID {
		// the memory store is bound at startup; a per-request id is only reported
		logx.Warn().Str("requested", p.MemoryID).Str("memory_id", h.memoryID).Msg("ignoring runtime memory id")
	}

	out := Response{SessionID: sessionID, ActorID: actorID}
	prompt := strings.TrimSpace(p.Prompt)
	if prompt == "" {
		out.Response = "Error: " + errEmptyPrompt.Error()
		return out
	}

	logx.Debug().Str("actor_id", actorID).Str("session_id", sessionID).Int("prompt_chars", len(prompt)).Msg("processing request")
	reply, err := h.runner.Invoke(ctx, model.QueryInput{
		ActorID:   actorID,
		SessionID: sessionID,
		Query:     prompt,
	})
	if err != nil {
		logx.Error().Err(err).Str("actor_id", actorID).Str("session_id", sessionID).Msg("agent run failed")
		out.Response = "Error: " + err.Error()
		return out
	}
	out.Response = reply
	return out
}
