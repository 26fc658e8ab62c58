package handlers

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"crmpilot/app/core/llm"
	"crmpilot/app/core/workflow"
)

const workflowSystemPrompt = `You are a CRM workflow automation agent integrated with Odoo 16.
Execute the requested workflow step by step using the available tools.
Always confirm each step's result before proceeding to the next.
Log any errors clearly and continue where possible.
Respond in the same language (English or PT-BR) as the user's request.`

// WorkflowRunner executes a named workflow and audits the run.
type WorkflowRunner interface {
	ExecuteNamed(ctx context.Context, name string, trigger string, wfContext workflow.Context) workflow.Result
}

// WorkflowLister exposes the registered workflows.
type WorkflowLister interface {
	ListAll() []workflow.Workflow
}

// WorkflowHandler drives multi-step CRM workflows from natural
// language. Runs triggered through it are audited with the "agent"
// trigger.
type WorkflowHandler struct {
	llm      ToolRunner
	runner   WorkflowRunner
	lister   WorkflowLister
	tools    []llm.Tool
	model    string
	maxIters int
}

func NewWorkflowHandler(runner ToolRunner, wfRunner WorkflowRunner, lister WorkflowLister, crm CRM, model string, maxIters int) *WorkflowHandler {
	h := &WorkflowHandler{
		llm:      runner,
		runner:   wfRunner,
		lister:   lister,
		model:    model,
		maxIters: maxIters,
	}
	ts := crmToolset{crm: crm}
	h.tools = []llm.Tool{
		h.listWorkflowsTool(),
		h.runWorkflowTool(),
		ts.getLead(),
		ts.searchLeads(),
		ts.updateLead(),
		ts.markWon(),
		ts.markLost(),
		ts.convertToOpportunity(),
		ts.moveLeadToStage(),
		ts.pipelineStages(),
		ts.scheduleActivity(),
	}
	return h
}

func (h *WorkflowHandler) Name() string {
	return NameWorkflow
}

func (h *WorkflowHandler) Handle(ctx context.Context, message string) (string, error) {
	return h.llm.RunTools(ctx, h.model, workflowSystemPrompt, message, h.tools, h.maxIters)
}

func (h *WorkflowHandler) listWorkflowsTool() llm.Tool {
	return llm.Tool{
		Name:        "list_available_workflows",
		Description: "List all registered CRM workflows with their names and descriptions.",
		Parameters:  objectSchema(map[string]interface{}{}),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			type entry struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			entries := []entry{}
			for _, wf := range h.lister.ListAll() {
				entries = append(entries, entry{Name: wf.Name(), Description: wf.Description()})
			}
			out, err := json.Marshal(entries)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

func (h *WorkflowHandler) runWorkflowTool() llm.Tool {
	return llm.Tool{
		Name:        "run_workflow",
		Description: "Run a named CRM workflow with the provided context. Returns a JSON result with success, steps_executed, and message.",
		Parameters: objectSchema(map[string]interface{}{
			"workflow_name": stringProp("The registered name of the workflow to run."),
			"context_json":  stringProp("JSON object with the workflow input context, e.g. {\"lead_id\": 42}."),
		}, "workflow_name"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			wfContext := workflow.Context{}
			if raw := args.Get("context_json").String(); raw != "" {
				if err := json.Unmarshal([]byte(raw), &wfContext); err != nil {
					return "", err
				}
			}
			result := h.runner.ExecuteNamed(ctx, args.Get("workflow_name").String(), "agent", wfContext)
			out, err := json.Marshal(result)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
