package handlers

import "context"

const fallbackSystemPrompt = `You are a helpful CRM assistant integrated with Odoo 16.
You can answer questions about CRM concepts, query and update Odoo data, and
run automated CRM workflows.

You communicate fluently in both English and Brazilian Portuguese (PT-BR).
Always respond in the same language the user writes in.`

// Fallback answers anything the other handlers do not cover, with no
// tool access.
type Fallback struct {
	llm   ToolRunner
	model string
}

func NewFallback(runner ToolRunner, model string) *Fallback {
	return &Fallback{llm: runner, model: model}
}

func (h *Fallback) Name() string {
	return NameFallback
}

func (h *Fallback) Handle(ctx context.Context, message string) (string, error) {
	return h.llm.Complete(ctx, h.model, fallbackSystemPrompt, message)
}
