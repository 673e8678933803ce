package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/sap-order-agent/server/internal/agent/model"
)

var (
	//go:embed template/basic.txt
	basicSystemPrompt string
	//go:embed template/metadata.txt
	metadataSystemPrompt string
	//go:embed template/memory.txt
	memorySystemPrompt string
)

var systemPrompts = map[model.Profile]string{
	model.ProfileBasic:    basicSystemPrompt,
	model.ProfileMetadata: metadataSystemPrompt,
	model.ProfileMemory:   memorySystemPrompt,
}

// SystemVars are the values substituted into a profile's system prompt.
type SystemVars struct {
	BaseURL              string
	ServicePath          string
	TestOrder            string
	NavigationProperties []string
	Now                  time.Time
}

// RenderSystem renders the system prompt of profile p via the Eino prompt
// component so prompt callbacks fire.
func RenderSystem(ctx context.Context, p model.Profile, vars SystemVars) (string, error) {
	raw, ok := systemPrompts[p]
	if !ok {
		return "", fmt.Errorf("system prompt render: unknown profile %q", p)
	}
	now := vars.Now
	if now.IsZero() {
		now = time.Now()
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(raw),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"BaseURL":        vars.BaseURL,
		"ServiceName":    path.Base(strings.TrimSuffix(vars.ServicePath, "/")),
		"TestOrder":      vars.TestOrder,
		"NavigationList": strings.Join(vars.NavigationProperties, ", "),
		"Today":          now.Format("2006-01-02"),
	})
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// RecentConversation renders remembered turns as a system prompt suffix,
// empty when there is nothing to recall.
func RecentConversation(turns []model.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nRecent conversation:")
	for _, turn := range turns {
		for _, ev := range turn {
			b.WriteString("\n")
			b.WriteString(string(ev.Role))
			b.WriteString(": ")
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}
