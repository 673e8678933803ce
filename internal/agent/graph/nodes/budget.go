package nodes

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/sap-order-agent/server/internal/agent/model"
)

const DefaultMaxToolCalls = 10

// toolBudget caps the tool rounds a single request may run against SAP.
type toolBudget int

func newToolBudget(n int) toolBudget {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return toolBudget(n)
}

func (b toolBudget) limit() int { return int(b) }

// exhausted marks the state once the count has reached the cap. It reports
// true only on the call that flips the flag.
func (b toolBudget) exhausted(state *model.AppState) bool {
	if state.ToolCallLimitReached || state.ToolCallCount < b.limit() {
		return false
	}
	state.ToolCallLimitReached = true
	return true
}

// charge counts one tool round and reports whether it went over the cap.
func (b toolBudget) charge(state *model.AppState) bool {
	state.ToolCallCount++
	if state.ToolCallCount > b.limit() {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// lastToolCallID returns the ID of the first call of the latest assistant
// message that requested tools.
func lastToolCallID(history []*schema.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
			continue
		}
		return strings.TrimSpace(msg.ToolCalls[0].ID)
	}
	return ""
}
