package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/sap-order-agent/server/pkg/logger"
)

// newModelHandler logs the question going in, then the answer or the tool
// names the model asked for, with token usage when the provider reports it.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("name", info.Name)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages)).Int("tools", len(input.Tools))
				if q := lastUserContent(input.Messages); q != "" {
					ev = ev.Str("question", truncate(q, 200))
				}
			}
			ev.Msg("model start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			ev := logx.Debug().Str("name", info.Name)
			if u := output.TokenUsage; u != nil {
				ev = ev.Int("prompt_tokens", u.PromptTokens).
					Int("completion_tokens", u.CompletionTokens).
					Int("total_tokens", u.TotalTokens)
			}
			if msg := output.Message; msg != nil {
				if names := toolNames(msg.ToolCalls); len(names) > 0 {
					ev = ev.Strs("tool_calls", names)
				} else {
					ev = ev.Str("answer", truncate(strings.TrimSpace(msg.Content), 200))
				}
			}
			ev.Msg("model end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("name", info.Name).Msg("model error")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if m := msgs[i]; m != nil && m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func toolNames(calls []schema.ToolCall) []string {
	if len(calls) == 0 {
		return nil
	}
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Function.Name)
	}
	return names
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
