package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/sap-order-agent/server/internal/agent/graph/conversations"
	"github.com/sap-order-agent/server/internal/agent/model"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

const (
	NodeInputAssembler = "InputAssembler"
	NodeChatModel      = "ChatModel"
	NodeToolExecutor   = "ToolExecutor"
)

// NoAnswerReply is returned when the model finishes without any text.
const NoAnswerReply = "I could not produce an answer for this request. " +
	"Please try again with a more specific question, for example a single order number."

// SystemPromptFunc renders the system prompt for one run.
type SystemPromptFunc func(ctx context.Context) (string, error)

// NewInputAssemblerPreHandler binds the run to its actor and session and
// resets per-query counters.
func NewInputAssemblerPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		s.ActorID = in.ActorID
		s.SessionID = in.SessionID
		s.History = nil
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputAssemblerNode renders the system prompt, recalls memory and
// stores the user turn.
func NewInputAssemblerNode(mm *conversations.MessagesManager, render SystemPromptFunc) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		systemPrompt, err := render(ctx)
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}
		messages, err := mm.BuildContext(ctx, input, systemPrompt)
		if err != nil {
			return nil, fmt.Errorf("build conversation context: %w", err)
		}
		return messages, nil
	})
}

// NewChatModelPreHandler accumulates the run history and, once the tool
// budget is spent, tells the model to answer with what it has.
func NewChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	budget := newToolBudget(maxToolCalls)
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Tool results must answer a call ID; fill gaps from the latest assistant call.
		for _, msg := range in {
			if msg == nil || msg.Role != schema.Tool || strings.TrimSpace(msg.ToolCallID) != "" {
				continue
			}
			if id := lastToolCallID(state.History); id != "" {
				msg.ToolCallID = id
			}
		}

		state.History = append(state.History, in...)

		if budget.exhausted(state) {
			state.History = append(state.History, schema.SystemMessage(fmt.Sprintf(
				"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
					"Please synthesize a helpful response using the information you've already gathered. "+
					"Acknowledge any limitations in your response if you couldn't complete all necessary tool calls.",
				budget.limit(),
			)))
		}

		logx.Debug().Str("session_id", state.SessionID).Int("messages", len(state.History)).Msg("AI thinking...")
		return state.History, nil
	}
}

// NewChatModelPostHandler prices the call, names anonymous tool calls and
// stores the final assistant answer in memory.
func NewChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("chat model returned no message")
		}

		if out.ResponseMeta != nil {
			if cost := model.PriceUsage(modelName, out.ResponseMeta.Usage); cost != nil {
				state.TotalCostUSD += cost.TotalCost
				if out.Extra == nil {
					out.Extra = map[string]any{}
				}
				out.Extra["usage_cost"] = cost
				out.Extra["usage_cost_total_usd"] = state.TotalCostUSD

				logx.Debug().
					Str("session_id", state.SessionID).
					Str("node", NodeChatModel).
					Str("model", modelName).
					Int("prompt_tokens", cost.PromptTokens).
					Int("completion_tokens", cost.CompletionTokens).
					Int("total_tokens", cost.TotalTokens).
					Float64("total_cost_usd", cost.TotalCost).
					Float64("run_cost_usd", state.TotalCostUSD).
					Msg("LLM usage")
			}
		}

		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		// Only final answers are remembered: no further tool calls, or the
		// budget is spent. A final message without text gets the fallback.
		final := len(out.ToolCalls) == 0 || state.ToolCallLimitReached
		if final && strings.TrimSpace(out.Content) == "" {
			logx.Warn().
				Str("session_id", state.SessionID).
				Int("tool_calls", len(out.ToolCalls)).
				Msg("Model ended without an answer; using fallback reply")
			out.Content = NoAnswerReply
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 && !final {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}

		if out.Role == schema.Assistant && final {
			if err := mm.SaveResponse(ctx, state.ActorID, state.SessionID, out.Content); err != nil {
				logx.Error().
					Err(err).
					Str("actor_id", state.ActorID).
					Str("session_id", state.SessionID).
					Msg("Error saving assistant response")
			}
		}

		return out, nil
	}
}

// NewToolExecutorCondition routes tool calls to the executor until the
// budget is spent.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})
		if err != nil {
			return "", err
		}

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to end")
			return compose.END, nil
		}
		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}
		return compose.END, nil
	}
}

// NewToolExecutorPreHandler counts tool rounds against the budget.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	budget := newToolBudget(maxToolCalls)
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := budget.charge(state)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("session_id", state.SessionID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", budget.limit()).
				Str("session_id", state.SessionID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}
