package observers

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestLastUserContent(t *testing.T) {
	msgs := []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("  first  "),
		nil,
		schema.AssistantMessage("ok", nil),
		schema.UserMessage("Tell me about order 4353"),
	}
	assert.Equal(t, "Tell me about order 4353", lastUserContent(msgs))
	assert.Empty(t, lastUserContent(nil))
}

func TestToolNames(t *testing.T) {
	calls := []schema.ToolCall{
		{ID: "call_1", Function: schema.FunctionCall{Name: "get_order_header"}},
		{ID: "call_2", Function: schema.FunctionCall{Name: "remove_delivery_block"}},
	}
	assert.Equal(t, []string{"get_order_header", "remove_delivery_block"}, toolNames(calls))
	assert.Nil(t, toolNames(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}

func TestNewAllCallbacks(t *testing.T) {
	assert.NotNil(t, NewAllCallbacks())
}
