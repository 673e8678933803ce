package graph

import (
	"context"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/sap-order-agent/server/internal/agent/graph/conversations"
	"github.com/sap-order-agent/server/internal/agent/graph/nodes"
	"github.com/sap-order-agent/server/internal/agent/graph/observers"
	"github.com/sap-order-agent/server/internal/agent/graph/prompts"
	"github.com/sap-order-agent/server/internal/agent/graph/tools"
	"github.com/sap-order-agent/server/internal/agent/model"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

// Runner executes the compiled graph for one user message.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (string, error)
}

// Config holds everything needed to compose the agent end-to-end.
type Config struct {
	ChatModel  model.ChatModelConfig
	Agent      model.AgentConfig
	Memory     model.MemoryConfig
	MemoryRepo model.MemoryRepository
	Tools      *tools.Service
	ServiceURL string
	BaseURL    string
}

// GraphConfig holds the built components the graph is wired from.
type GraphConfig struct {
	ChatModel       einomodel.ToolCallingChatModel
	ModelName       string
	Tools           []tool.BaseTool
	MessagesManager *conversations.MessagesManager
	SystemPrompt    nodes.SystemPromptFunc
	ToolMaxCalls    int
}

// GraphBuilder handles the construction of the agent graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	if total, ok := out.Extra["usage_cost_total_usd"].(float64); ok {
		logx.Info().
			Str("actor_id", in.ActorID).
			Str("session_id", in.SessionID).
			Float64("total_cost_usd", total).
			Msg("agent run finished")
	}
	return out.Content, nil
}

// BuildAgent creates the Gemini chat model and returns a Runner for cfg.
func BuildAgent(ctx context.Context, cfg Config) (Runner, error) {
	cm, err := nodes.NewChatModel(ctx, cfg.ChatModel)
	if err != nil {
		return nil, err
	}
	return NewRunner(ctx, cm, cfg)
}

// NewRunner builds the graph around an already constructed chat model.
func NewRunner(ctx context.Context, cm einomodel.ToolCallingChatModel, cfg Config) (Runner, error) {
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool service is nil")
	}
	profileTools, err := cfg.Tools.ForProfile(cfg.Agent.Profile)
	if err != nil {
		return nil, err
	}

	vars := prompts.SystemVars{
		BaseURL:     cfg.BaseURL,
		ServicePath: cfg.ServiceURL,
		TestOrder:   cfg.Agent.TestOrder,
	}
	if md := cfg.Tools.Metadata(); md != nil {
		for _, np := range md.NavigationProperties(tools.EntityTypeSalesOrder) {
			vars.NavigationProperties = append(vars.NavigationProperties, np.Name)
		}
	}
	profile := cfg.Agent.Profile

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModel:       cm,
		ModelName:       cfg.ChatModel.Model,
		Tools:           profileTools,
		MessagesManager: conversations.NewMessagesManager(cfg.MemoryRepo, cfg.Memory),
		SystemPrompt: func(ctx context.Context) (string, error) {
			v := vars
			v.Now = time.Now()
			return prompts.RenderSystem(ctx, profile, v)
		},
		ToolMaxCalls: cfg.Agent.ToolMaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Str("profile", string(profile)).Int("tools", len(profileTools)).Msg("Agent graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled agent graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.SystemPrompt == nil {
		return nil, fmt.Errorf("system prompt renderer is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	boundModel, err := builder.setupTools(ctx)
	if err != nil {
		return nil, err
	}
	if err := builder.addNodes(boundModel); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// setupTools binds the tools to the chat model and adds the executor node.
func (b *GraphBuilder) setupTools(ctx context.Context) (einomodel.ToolCallingChatModel, error) {
	toolInfos, err := tools.GetToolInfos(ctx, b.config.Tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return nil, fmt.Errorf("failed to get tool infos: %w", err)
	}

	bound, err := nodes.BindTools(b.config.ChatModel, toolInfos)
	if err != nil {
		return nil, err
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:                b.config.Tools,
		ExecuteSequentially:  true,
		UnknownToolsHandler:  tools.UnknownTool,
		ToolArgumentsHandler: tools.SanitizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}

	if err := b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	); err != nil {
		return nil, fmt.Errorf("add tools node: %w", err)
	}
	return bound, nil
}

// addNodes adds the assembler and chat model nodes.
func (b *GraphBuilder) addNodes(cm einomodel.ToolCallingChatModel) error {
	if err := b.graph.AddLambdaNode(nodes.NodeInputAssembler,
		nodes.NewInputAssemblerNode(b.config.MessagesManager, b.config.SystemPrompt),
		compose.WithStatePreHandler(nodes.NewInputAssemblerPreHandler()),
	); err != nil {
		return fmt.Errorf("add input assembler node: %w", err)
	}

	if err := b.graph.AddChatModelNode(nodes.NodeChatModel, cm,
		compose.WithStatePreHandler(nodes.NewChatModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewChatModelPostHandler(b.config.MessagesManager, b.config.ModelName)),
	); err != nil {
		return fmt.Errorf("add chat model node: %w", err)
	}
	return nil
}

// addEdges creates the main flow connections between nodes.
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputAssembler},
		{nodes.NodeInputAssembler, nodes.NodeChatModel},
		{nodes.NodeToolExecutor, nodes.NodeChatModel},
	}
	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches routes chat model output to the tool executor or to END.
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Each tool round costs two steps; bound the run so a looping model ends.
	limit := b.config.ToolMaxCalls
	if limit <= 0 {
		limit = nodes.DefaultMaxToolCalls
	}
	maxSteps := 10 + limit*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Int("max_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}
