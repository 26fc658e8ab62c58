package handlers

import (
	"context"

	"crmpilot/app/core/llm"
)

const dataOpsSystemPrompt = `You are a precise Odoo 16 CRM data operations agent.
Execute CRUD operations on Odoo using the available tools.
Always confirm operation results and return structured information.
Never invent data - only use what the tools return.
Respond in the same language (English or PT-BR) as the user's instruction.`

// DataOps executes natural-language CRUD instructions against Odoo.
type DataOps struct {
	llm      ToolRunner
	tools    []llm.Tool
	model    string
	maxIters int
}

func NewDataOps(runner ToolRunner, crm CRM, model string, maxIters int) *DataOps {
	ts := crmToolset{crm: crm}
	return &DataOps{
		llm: runner,
		tools: []llm.Tool{
			ts.searchLeads(),
			ts.getLead(),
			ts.createLead(),
			ts.updateLead(),
			ts.markWon(),
			ts.markLost(),
			ts.convertToOpportunity(),
			ts.searchPartners(),
			ts.getPartner(),
			ts.createPartner(),
			ts.updatePartner(),
			ts.scheduleActivity(),
			ts.markActivityDone(),
			ts.listLeadActivities(),
			ts.overdueActivities(),
			ts.pipelineStages(),
			ts.moveLeadToStage(),
			ts.pipelineSummary(),
		},
		model:    model,
		maxIters: maxIters,
	}
}

func (h *DataOps) Name() string {
	return NameDataOps
}

func (h *DataOps) Handle(ctx context.Context, message string) (string, error) {
	return h.llm.RunTools(ctx, h.model, dataOpsSystemPrompt, message, h.tools, h.maxIters)
}
