package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/sap-order-agent/server/internal/agent/graph/tools"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

// newToolHandler logs every tool run. Calls that change SAP data are logged
// at info level with their arguments; failure replies are raised to warn.
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			ev := logx.Debug()
			if tools.IsWrite(info.Name) {
				ev = logx.Info().Bool("sap_write", true)
			}
			ev = ev.Str("tool", info.Name)
			if input != nil {
				ev = ev.Str("arguments", input.ArgumentsInJSON)
			}
			ev.Msg("tool start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			if tools.Failed(output.Response) {
				logx.Warn().
					Str("tool", info.Name).
					Bool("sap_write", tools.IsWrite(info.Name)).
					Str("result", truncate(output.Response, 300)).
					Msg("tool reported failure")
				return ctx
			}
			logx.Debug().Str("tool", info.Name).Int("response_bytes", len(output.Response)).Msg("tool end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("tool", info.Name).Msg("tool error")
			return ctx
		},
	}
}
