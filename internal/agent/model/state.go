package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// It is registered via compose.WithGenLocalState and only touched inside
// state handlers or compose.ProcessState, which Eino serializes.
type AppState struct {
	ActorID              string
	SessionID            string
	History              []*schema.Message
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // synthesizes tool_call_id when the provider omits it

	TotalCostUSD float64
}

// QueryInput is one user message addressed to the agent.
type QueryInput struct {
	ActorID   string `json:"actor_id"`
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}
