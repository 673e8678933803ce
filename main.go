package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/sap-order-agent/server/internal/agent/graph"
	"github.com/sap-order-agent/server/internal/agent/graph/tools"
	"github.com/sap-order-agent/server/internal/agent/model"
	"github.com/sap-order-agent/server/internal/agent/repo"
	"github.com/sap-order-agent/server/internal/core"
	"github.com/sap-order-agent/server/internal/entrypoint"
	"github.com/sap-order-agent/server/internal/odata"
	logx "github.com/sap-order-agent/server/pkg/logger"
	pkgredis "github.com/sap-order-agent/server/pkg/redis"
)

const (
	modeDemo  = "demo"
	modeREPL  = "repl"
	modeServe = "serve"
)

// AppConfig defines all configurable parameters of the agent process,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	Mode        string `envconfig:"APP_MODE" default:"demo"`
	Addr        string `envconfig:"APP_ADDR" default:":8080"`

	// Infrastructure
	SAP   odata.Config
	Redis pkgredis.Config

	// Agent configs
	ChatModel model.ChatModelConfig
	Agent     model.AgentConfig
	Memory    model.MemoryConfig
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(cfg.Environment),
		Level:       cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("Agent stopped")
	}
}

func run(ctx context.Context, cfg AppConfig) error {
	client, err := odata.NewClient(cfg.SAP)
	if err != nil {
		return err
	}
	if err := client.TestConnection(ctx); err != nil {
		logx.Error().Err(err).Str("base_url", client.BaseURL()).Msg("SAP connection failed - check credentials")
		return err
	}
	logx.Info().Str("service", client.ServiceURL()).Msg("Connected to SAP system")

	var md *odata.Metadata
	if cfg.Agent.Profile.NeedsMetadata() {
		md, err = client.Metadata(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("Failed to fetch SAP metadata")
			return err
		}
		logx.Info().Int("entity_types", len(md.EntityTypes)).Int("associations", len(md.Associations)).Msg("SAP metadata parsed")
	}

	var rdb redis.Cmdable
	if cfg.Memory.Driver == model.MemoryDriverRedis {
		rc, err := cfg.Redis.New(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("Failed to initialise Redis client")
			return err
		}
		defer rc.Close()
		rdb = rc
		logx.Info().Msg("Connected to Redis successfully")
	}
	memoryRepo, err := repo.NewMemoryRepository(cfg.Memory, rdb)
	if err != nil {
		return err
	}

	runner, err := graph.BuildAgent(ctx, graph.Config{
		ChatModel:  cfg.ChatModel,
		Agent:      cfg.Agent,
		Memory:     cfg.Memory,
		MemoryRepo: memoryRepo,
		Tools:      tools.NewService(client, md),
		ServiceURL: client.ServiceURL(),
		BaseURL:    client.BaseURL(),
	})
	if err != nil {
		return err
	}

	handler := entrypoint.NewHandler(runner, cfg.Memory.ID)
	console := entrypoint.NewConsole(handler, os.Stdin, os.Stdout)

	logx.Info().
		Str("mode", cfg.Mode).
		Str("profile", string(cfg.Agent.Profile)).
		Str("memory_driver", string(cfg.Memory.Driver)).
		Str("memory_id", cfg.Memory.ID).
		Msg("Agent ready")

	switch cfg.Mode {
	case modeServe:
		return entrypoint.NewServer(cfg.Addr, handler).Start(ctx)
	case modeREPL:
		return console.REPL(ctx, cfg.Memory.ActorID, cfg.Memory.SessionID)
	default:
		if cfg.Mode != modeDemo {
			logx.Warn().Str("mode", cfg.Mode).Msg("Unknown APP_MODE, running demo")
		}
		return console.Demo(ctx, cfg.Memory.ActorID, cfg.Memory.SessionID,
			entrypoint.DemoScript(cfg.Agent.Profile, cfg.Agent.TestOrder))
	}
}
