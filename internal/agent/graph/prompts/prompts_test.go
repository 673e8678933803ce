package prompts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sap-order-agent/server/internal/agent/model"
)

func TestRenderSystem(t *testing.T) {
	vars := SystemVars{
		BaseURL:              "https://sap.example.com:44300",
		ServicePath:          "/sap/opu/odata/sap/API_SALES_ORDER_SRV",
		TestOrder:            "4353",
		NavigationProperties: []string{"to_Item", "to_Partner"},
		Now:                  time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC),
	}

	out, err := RenderSystem(context.Background(), model.ProfileMetadata, vars)
	require.NoError(t, err)
	assert.Contains(t, out, "to_Item, to_Partner")
	assert.Contains(t, out, "- Service: API_SALES_ORDER_SRV")
	assert.Contains(t, out, "- Connected to: https://sap.example.com:44300")
	assert.Contains(t, out, `get_order_items("4353")`)
	assert.Contains(t, out, "Current date: 2025-10-26")

	out, err = RenderSystem(context.Background(), model.ProfileBasic, vars)
	require.NoError(t, err)
	assert.Contains(t, out, "Test order available: 4353")

	out, err = RenderSystem(context.Background(), model.ProfileMemory, vars)
	require.NoError(t, err)
	assert.Contains(t, out, "Today's date: 2025-10-26")
	assert.NotContains(t, out, "{{")

	_, err = RenderSystem(context.Background(), "nope", vars)
	assert.Error(t, err)
}

func TestRecentConversation(t *testing.T) {
	assert.Empty(t, RecentConversation(nil))

	turns := []model.Turn{
		{{Role: model.RoleUser, Text: "order 4062?"}, {Role: model.RoleAssistant, Text: "open"}},
		{{Role: model.RoleUser, Text: "value?"}},
	}
	assert.Equal(t, "\n\nRecent conversation:\nUSER: order 4062?\nASSISTANT: open\nUSER: value?", RecentConversation(turns))
}
