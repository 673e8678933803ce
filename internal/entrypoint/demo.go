package entrypoint

import "github.com/sap-order-agent/server/internal/agent/model"

// DemoScript returns the scripted walkthrough for a profile.
func DemoScript(p model.Profile, testOrder string) []DemoQuery {
	switch p {
	case model.ProfileBasic:
		return []DemoQuery{
			{"Connection check", "Test our SAP connection"},
			{"Order summary", "Tell me about order " + testOrder},
			{"Delivery block removal", "Remove the delivery block from order " + testOrder + " because it was approved"},
			{"Confirmation", "Check order " + testOrder + " again to confirm the block is removed"},
		}
	case model.ProfileMemory:
		return []DemoQuery{
			{"First call", "Can you get details for order 4062?"},
			{"Follow-up on the same order", "What is the Order type of that Sales Order?"},
			{"Continue conversation", "What was the total value of that order?"},
		}
	default:
		return []DemoQuery{
			{"Order items", "What items are in order " + testOrder + "?"},
			{"Quantities", "Show me the quantities for order " + testOrder},
			{"Items and partners", "Get order " + testOrder + " with items and partners"},
			{"Associations", "What associations are available?"},
		}
	}
}
