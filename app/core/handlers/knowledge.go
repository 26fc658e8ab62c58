package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"crmpilot/app/core/kb"
	"crmpilot/app/core/llm"
)

const knowledgeSystemPrompt = `You are an expert on Odoo 16 CRM.
Answer questions using ONLY the information retrieved from the knowledge base.
If the knowledge base does not contain enough information, say so clearly.
Always cite the source document when possible.
Respond in the same language (English or PT-BR) as the user's question.`

// Retriever is the slice of the knowledge base the handler searches.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]kb.Hit, error)
}

// Knowledge answers CRM questions grounded in ingested documentation.
type Knowledge struct {
	llm       ToolRunner
	retriever Retriever
	model     string
	retrieveK int
	maxIters  int
}

func NewKnowledge(runner ToolRunner, retriever Retriever, model string, retrieveK int, maxIters int) *Knowledge {
	if retrieveK <= 0 {
		retrieveK = 4
	}
	return &Knowledge{llm: runner, retriever: retriever, model: model, retrieveK: retrieveK, maxIters: maxIters}
}

func (h *Knowledge) Name() string {
	return NameKnowledge
}

func (h *Knowledge) Handle(ctx context.Context, message string) (string, error) {
	return h.llm.RunTools(ctx, h.model, knowledgeSystemPrompt, message, []llm.Tool{h.searchTool()}, h.maxIters)
}

func (h *Knowledge) searchTool() llm.Tool {
	return llm.Tool{
		Name:        "search_knowledge_base",
		Description: "Search the Odoo CRM knowledge base. Performs a semantic similarity search over ingested documentation and returns the most relevant chunks.",
		Parameters: objectSchema(map[string]interface{}{
			"question": stringProp("The question or topic to search for."),
		}, "question"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			hits, err := h.retriever.Retrieve(ctx, args.Get("question").String(), h.retrieveK)
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return "No relevant information found in the knowledge base.", nil
			}
			parts := make([]string, len(hits))
			for i, hit := range hits {
				parts[i] = fmt.Sprintf("[Source: %s]\n%s", hit.Source, hit.Content)
			}
			return strings.Join(parts, "\n\n---\n\n"), nil
		},
	}
}
