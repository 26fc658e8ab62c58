package workflow

import (
	"context"

	"crmpilot/app/core/odoo"
)

// CRM is the slice of the Odoo client that workflows operate on.
type CRM interface {
	GetLead(ctx context.Context, leadID int64) (odoo.Record, error)
	UpdateLead(ctx context.Context, leadID int64, values map[string]interface{}) error
	SearchLeads(ctx context.Context, domain []interface{}, limit int) ([]odoo.Record, error)
	StageByName(ctx context.Context, name string) (odoo.Record, error)
	GetPartner(ctx context.Context, partnerID int64) (odoo.Record, error)
	AddLeadNote(ctx context.Context, leadID int64, note string) (int64, error)
}

// Context carries workflow input parameters. Values decoded from JSON
// arrive as float64, so the accessors normalize numbers.
type Context map[string]interface{}

func (c Context) Int(key string) (int64, bool) {
	switch v := c[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func (c Context) IntDefault(key string, fallback int64) int64 {
	if v, ok := c.Int(key); ok && v > 0 {
		return v
	}
	return fallback
}

// Result is what every workflow execution returns. A failed run keeps
// the steps that did complete before the halt.
type Result struct {
	Success       bool     `json:"success"`
	StepsExecuted []string `json:"steps_executed"`
	Message       string   `json:"message"`
	Err           string   `json:"error,omitempty"`
}

func failure(message string, errText string, steps []string) Result {
	if steps == nil {
		steps = []string{}
	}
	return Result{Success: false, StepsExecuted: steps, Message: message, Err: errText}
}

type Workflow interface {
	Name() string
	Description() string
	Execute(ctx context.Context, wfContext Context) Result
}
