package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks returns one handler covering the prompt, chat model and
// tool components of the agent graph.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Prompt(newPromptHandler()).
		ChatModel(newModelHandler()).
		Tool(newToolHandler()).
		Handler()
}
