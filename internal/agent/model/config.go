package model

import (
	"fmt"
	"strings"
	"time"
)

// ================ Config ================
type ChatModelConfig struct {
	APIKey         string  `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL        string  `envconfig:"GEMINI_BASE_URL"`
	Model          string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"AGENT_MAX_TOKENS" default:"2000"`
	Temperature    float32 `envconfig:"AGENT_TEMPERATURE" default:"0.3"`
	ThinkingBudget int32   `envconfig:"AGENT_THINKING_BUDGET" default:"0"`
}

type AgentConfig struct {
	Profile      Profile `envconfig:"AGENT_PROFILE" default:"metadata"`
	ToolMaxCalls int     `envconfig:"AGENT_TOOL_MAX_CALLS" default:"10"`
	// TestOrder is advertised in the system prompt as a known-good order.
	TestOrder string `envconfig:"AGENT_TEST_ORDER" default:"4353"`
}

type MemoryConfig struct {
	Driver    MemoryDriver  `envconfig:"MEMORY_DRIVER" default:"inmem"`
	ID        string        `envconfig:"MEMORY_ID" default:"sap_strand_intelligent_agent_v1"`
	TTL       time.Duration `envconfig:"MEMORY_TTL" default:"24h"`
	LastK     int           `envconfig:"MEMORY_LAST_K" default:"5"`
	ActorID   string        `envconfig:"ACTOR_ID" default:"sap_user_123"`
	SessionID string        `envconfig:"SESSION_ID"`
}

// ================ Profile ================

// Profile selects the tool set and system prompt of the agent.
type Profile string

const (
	// ProfileBasic reads and summarizes orders and removes delivery blocks.
	ProfileBasic Profile = "basic"
	// ProfileMetadata discovers navigation properties from $metadata.
	ProfileMetadata Profile = "metadata"
	// ProfileMemory searches orders and remembers earlier turns.
	ProfileMemory Profile = "memory"
)

// Decode implements envconfig.Decoder.
func (p *Profile) Decode(value string) error {
	parsed, err := ParseProfile(value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func ParseProfile(v string) (Profile, error) {
	switch Profile(strings.ToLower(strings.TrimSpace(v))) {
	case ProfileBasic:
		return ProfileBasic, nil
	case ProfileMetadata, "":
		return ProfileMetadata, nil
	case ProfileMemory:
		return ProfileMemory, nil
	default:
		return "", fmt.Errorf("unknown agent profile %q", v)
	}
}

// NeedsMetadata reports whether the profile's tools read the service $metadata.
func (p Profile) NeedsMetadata() bool {
	return p == ProfileMetadata
}

// ================ Memory driver ================

type MemoryDriver string

const (
	MemoryDriverInMem MemoryDriver = "inmem"
	MemoryDriverRedis MemoryDriver = "redis"
)

// Decode implements envconfig.Decoder.
func (d *MemoryDriver) Decode(value string) error {
	switch MemoryDriver(strings.ToLower(strings.TrimSpace(value))) {
	case MemoryDriverInMem, "":
		*d = MemoryDriverInMem
	case MemoryDriverRedis:
		*d = MemoryDriverRedis
	default:
		return fmt.Errorf("unknown memory driver %q", value)
	}
	return nil
}
