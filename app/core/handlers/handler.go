package handlers

import (
	"context"

	"crmpilot/app/core/llm"
)

// Handler names recorded in chat history and API responses.
const (
	NameKnowledge = "knowledge"
	NameDataOps   = "data_ops"
	NameWorkflow  = "workflow"
	NameFallback  = "fallback"
)

// ToolRunner is the slice of the LLM client handlers drive.
type ToolRunner interface {
	Complete(ctx context.Context, model string, system string, user string) (string, error)
	RunTools(ctx context.Context, model string, system string, input string, tools []llm.Tool, maxIters int) (string, error)
}

type Handler interface {
	Name() string
	Handle(ctx context.Context, message string) (string, error)
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}
