package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/sap-order-agent/server/internal/agent/model"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

// NewChatModel creates the Gemini chat model that drives the agent.
func NewChatModel(ctx context.Context, config model.ChatModelConfig) (*gemini.ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	gcfg := &gemini.Config{
		Client:      client,
		Model:       config.Model,
		Temperature: &config.Temperature,
		MaxTokens:   &config.MaxTokens,
	}
	if config.ThinkingBudget > 0 {
		gcfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(config.ThinkingBudget),
		}
	}

	cm, err := gemini.NewChatModel(ctx, gcfg)
	if err != nil {
		logx.Error().Err(err).Str("model", config.Model).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}
	return cm, nil
}

// BindTools returns a chat model instance with the tools bound.
func BindTools(cm einomodel.ToolCallingChatModel, tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := cm.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}
	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to chat model")
	return bound, nil
}
