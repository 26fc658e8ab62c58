package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"crmpilot/app/core/llm"
	"crmpilot/app/core/odoo"
)

// CRM is the slice of the Odoo client the conversational tools call.
type CRM interface {
	SearchLeads(ctx context.Context, domain []interface{}, limit int) ([]odoo.Record, error)
	GetLead(ctx context.Context, leadID int64) (odoo.Record, error)
	CreateLead(ctx context.Context, values map[string]interface{}) (int64, error)
	UpdateLead(ctx context.Context, leadID int64, values map[string]interface{}) error
	MarkWon(ctx context.Context, leadID int64) error
	MarkLost(ctx context.Context, leadID int64, lostReasonID int64) error
	ConvertToOpportunity(ctx context.Context, leadID int64) error
	SearchPartners(ctx context.Context, query string, limit int) ([]odoo.Record, error)
	GetPartner(ctx context.Context, partnerID int64) (odoo.Record, error)
	CreatePartner(ctx context.Context, values map[string]interface{}) (int64, error)
	UpdatePartner(ctx context.Context, partnerID int64, values map[string]interface{}) error
	CreateActivity(ctx context.Context, resModel string, resID int64, activityTypeID int64, summary string, note string, dateDeadline string) (int64, error)
	ResolveActivityTypeID(ctx context.Context, activityType string) int64
	MarkActivityDone(ctx context.Context, activityID int64, feedback string) error
	ListActivities(ctx context.Context, resModel string, resID int64) ([]odoo.Record, error)
	OverdueActivities(ctx context.Context, userID int64) ([]odoo.Record, error)
	Stages(ctx context.Context, teamID int64) ([]odoo.Record, error)
	StageByName(ctx context.Context, name string) (odoo.Record, error)
}

// crmToolset builds the CRM-facing tools shared by the data operations
// and workflow handlers.
type crmToolset struct {
	crm CRM
}

func recordsJSON(records []odoo.Record) string {
	parts := make([]string, len(records))
	for i, record := range records {
		parts[i] = record.JSON()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func successJSON(ok bool) string {
	out, _ := sjson.Set("{}", "success", ok)
	return out
}

func idJSON(id int64) string {
	out, _ := sjson.Set("{}", "id", id)
	return out
}

func (ts crmToolset) searchLeads() llm.Tool {
	return llm.Tool{
		Name:        "search_crm_leads",
		Description: "Search CRM leads and opportunities by name. Returns a JSON list of matching records.",
		Parameters: objectSchema(map[string]interface{}{
			"query": stringProp("Text to search for in lead names."),
			"limit": integerProp("Maximum number of results (default 10)."),
		}, "query"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			limit := int(args.Get("limit").Int())
			if limit <= 0 {
				limit = 10
			}
			domain := []interface{}{odoo.Cond("name", "ilike", args.Get("query").String())}
			records, err := ts.crm.SearchLeads(ctx, domain, limit)
			if err != nil {
				return "", err
			}
			return recordsJSON(records), nil
		},
	}
}

func (ts crmToolset) getLead() llm.Tool {
	return llm.Tool{
		Name:        "get_crm_lead",
		Description: "Get the full details of a single CRM lead or opportunity by id.",
		Parameters: objectSchema(map[string]interface{}{
			"lead_id": integerProp("The Odoo record id of the lead."),
		}, "lead_id"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			record, err := ts.crm.GetLead(ctx, args.Get("lead_id").Int())
			if err != nil {
				return "", err
			}
			return record.JSON(), nil
		},
	}
}

func (ts crmToolset) createLead() llm.Tool {
	return llm.Tool{
		Name:        "create_crm_lead",
		Description: "Create a new CRM lead. Returns JSON with the new lead id.",
		Parameters: objectSchema(map[string]interface{}{
			"name":         stringProp("Lead title."),
			"email":        stringProp("Contact e-mail address."),
			"contact_name": stringProp("Full name of the contact person."),
			"description":  stringProp("Optional additional notes."),
		}, "name"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			id, err := ts.crm.CreateLead(ctx, map[string]interface{}{
				"name":         args.Get("name").String(),
				"email_from":   args.Get("email").String(),
				"contact_name": args.Get("contact_name").String(),
				"description":  args.Get("description").String(),
				"type":         "lead",
			})
			if err != nil {
				return "", err
			}
			return idJSON(id), nil
		},
	}
}

func (ts crmToolset) updateLead() llm.Tool {
	return llm.Tool{
		Name:        "update_crm_lead",
		Description: "Update fields on an existing CRM lead. values_json is a JSON object of field names to new values.",
		Parameters: objectSchema(map[string]interface{}{
			"lead_id":     integerProp("The Odoo record id of the lead."),
			"values_json": stringProp("JSON object mapping field names to new values."),
		}, "lead_id", "values_json"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			values := map[string]interface{}{}
			if err := json.Unmarshal([]byte(args.Get("values_json").String()), &values); err != nil {
				return "", err
			}
			if err := ts.crm.UpdateLead(ctx, args.Get("lead_id").Int(), values); err != nil {
				return "", err
			}
			return successJSON(true), nil
		},
	}
}

func (ts crmToolset) markWon() llm.Tool {
	return llm.Tool{
		Name:        "mark_lead_won",
		Description: "Mark a CRM lead or opportunity as won.",
		Parameters: objectSchema(map[string]interface{}{
			"lead_id": integerProp("The Odoo record id of the lead."),
		}, "lead_id"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			if err := ts.crm.MarkWon(ctx, args.Get("lead_id").Int()); err != nil {
				return "", err
			}
			return successJSON(true), nil
		},
	}
}

func (ts crmToolset) markLost() llm.Tool {
	return llm.Tool{
		Name:        "mark_lead_lost",
		Description: "Mark a CRM lead or opportunity as lost, with an optional lost reason id.",
		Parameters: objectSchema(map[string]interface{}{
			"lead_id":        integerProp("The Odoo record id of the lead."),
			"lost_reason_id": integerProp("Optional crm.lost.reason id."),
		}, "lead_id"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			if err := ts.crm.MarkLost(ctx, args.Get("lead_id").Int(), args.Get("lost_reason_id").Int()); err != nil {
				return "", err
			}
			return successJSON(true), nil
		},
	}
}

func (ts crmToolset) convertToOpportunity() llm.Tool {
	return llm.Tool{
		Name:        "convert_lead_to_opportunity",
		Description: "Convert a CRM lead into an opportunity.",
		Parameters: objectSchema(map[string]interface{}{
			"lead_id": integerProp("The Odoo record id of the lead."),
		}, "lead_id"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			if err := ts.crm.ConvertToOpportunity(ctx, args.Get("lead_id").Int()); err != nil {
				return "", err
			}
			return successJSON(true), nil
		},
	}
}

func (ts crmToolset) searchPartners() llm.Tool {
	return llm.Tool{
		Name:        "search_partners",
		Description: "Search partner (customer) records by name or e-mail.",
		Parameters: objectSchema(map[string]interface{}{
			"query": stringProp("Text to match against partner name or e-mail."),
			"limit": integerProp("Maximum number of results (default 10)."),
		}, "query"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			limit := int(args.Get("limit").Int())
			if limit <= 0 {
				limit = 10
			}
			records, err := ts.crm.SearchPartners(ctx, args.Get("query").String(), limit)
			if err != nil {
				return "", err
			}
			return recordsJSON(records), nil
		},
	}
}

func (ts crmToolset) getPartner() llm.Tool {
	return llm.Tool{
		Name:        "get_partner",
		Description: "Get the full details of a partner record by id.",
		Parameters: objectSchema(map[string]interface{}{
			"partner_id": integerProp("The Odoo record id of the partner."),
		}, "partner_id"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			record, err := ts.crm.GetPartner(ctx, args.Get("partner_id").Int())
			if err != nil {
				return "", err
			}
			return record.JSON(), nil
		},
	}
}

func (ts crmToolset) createPartner() llm.Tool {
	return llm.Tool{
		Name:        "create_partner",
		Description: "Create a new partner (customer) record. Returns JSON with the new partner id.",
		Parameters: objectSchema(map[string]interface{}{
			"name":  stringProp("Partner name."),
			"email": stringProp("Partner e-mail address."),
			"phone": stringProp("Partner phone number."),
		}, "name"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			id, err := ts.crm.CreatePartner(ctx, map[string]interface{}{
				"name":  args.Get("name").String(),
				"email": args.Get("email").String(),
				"phone": args.Get("phone").String(),
			})
			if err != nil {
				return "", err
			}
			return idJSON(id), nil
		},
	}
}

func (ts crmToolset) updatePartner() llm.Tool {
	return llm.Tool{
		Name:        "update_partner",
		Description: "Update fields on an existing partner record. values_json is a JSON object of field names to new values.",
		Parameters: objectSchema(map[string]interface{}{
			"partner_id":  integerProp("The Odoo record id of the partner."),
			"values_json": stringProp("JSON object mapping field names to new values."),
		}, "partner_id", "values_json"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			values := map[string]interface{}{}
			if err := json.Unmarshal([]byte(args.Get("values_json").String()), &values); err != nil {
				return "", err
			}
			if err := ts.crm.UpdatePartner(ctx, args.Get("partner_id").Int(), values); err != nil {
				return "", err
			}
			return successJSON(true), nil
		},
	}
}

func (ts crmToolset) scheduleActivity() llm.Tool {
	return llm.Tool{
		Name:        "schedule_activity",
		Description: "Schedule an activity on a CRM lead or opportunity. activity_type is a name such as call, email, or meeting.",
		Parameters: objectSchema(map[string]interface{}{
			"lead_id":       integerProp("CRM lead record id."),
			"activity_type": stringProp("Type name such as call, email, or meeting."),
			"summary":       stringProp("Short title of the activity."),
			"due_date":      stringProp("Deadline in YYYY-MM-DD format."),
			"note":          stringProp("Optional detailed note."),
		}, "lead_id", "activity_type", "summary", "due_date"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			typeID := ts.crm.ResolveActivityTypeID(ctx, args.Get("activity_type").String())
			id, err := ts.crm.CreateActivity(ctx, "crm.lead", args.Get("lead_id").Int(), typeID,
				args.Get("summary").String(), args.Get("note").String(), args.Get("due_date").String())
			if err != nil {
				return "", err
			}
			return idJSON(id), nil
		},
	}
}

func (ts crmToolset) markActivityDone() llm.Tool {
	return llm.Tool{
		Name:        "mark_activity_done",
		Description: "Mark an activity as done, with optional feedback text.",
		Parameters: objectSchema(map[string]interface{}{
			"activity_id": integerProp("The activity record id."),
			"feedback":    stringProp("Optional feedback text."),
		}, "activity_id"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			if err := ts.crm.MarkActivityDone(ctx, args.Get("activity_id").Int(), args.Get("feedback").String()); err != nil {
				return "", err
			}
			return successJSON(true), nil
		},
	}
}

func (ts crmToolset) listLeadActivities() llm.Tool {
	return llm.Tool{
		Name:        "list_lead_activities",
		Description: "List all activities scheduled for a CRM lead.",
		Parameters: objectSchema(map[string]interface{}{
			"lead_id": integerProp("CRM lead record id."),
		}, "lead_id"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			records, err := ts.crm.ListActivities(ctx, "crm.lead", args.Get("lead_id").Int())
			if err != nil {
				return "", err
			}
			return recordsJSON(records), nil
		},
	}
}

func (ts crmToolset) overdueActivities() llm.Tool {
	return llm.Tool{
		Name:        "get_overdue_activities",
		Description: "Return all overdue activities across the CRM, optionally filtered by salesperson id.",
		Parameters: objectSchema(map[string]interface{}{
			"user_id": integerProp("Optional salesperson id to filter by."),
		}),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			records, err := ts.crm.OverdueActivities(ctx, args.Get("user_id").Int())
			if err != nil {
				return "", err
			}
			return recordsJSON(records), nil
		},
	}
}

func (ts crmToolset) pipelineStages() llm.Tool {
	return llm.Tool{
		Name:        "get_pipeline_stages",
		Description: "Return all CRM pipeline stages configured in Odoo.",
		Parameters:  objectSchema(map[string]interface{}{}),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			records, err := ts.crm.Stages(ctx, 0)
			if err != nil {
				return "", err
			}
			return recordsJSON(records), nil
		},
	}
}

func (ts crmToolset) moveLeadToStage() llm.Tool {
	return llm.Tool{
		Name:        "move_lead_to_stage",
		Description: "Move a CRM lead or opportunity to a named pipeline stage.",
		Parameters: objectSchema(map[string]interface{}{
			"lead_id":    integerProp("CRM lead record id."),
			"stage_name": stringProp("Human-readable stage name, e.g. Qualified."),
		}, "lead_id", "stage_name"),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			stageName := args.Get("stage_name").String()
			stage, err := ts.crm.StageByName(ctx, stageName)
			if err != nil {
				out, _ := sjson.Set(successJSON(false), "error", "Stage '"+stageName+"' not found")
				return out, nil
			}
			if err := ts.crm.UpdateLead(ctx, args.Get("lead_id").Int(), map[string]interface{}{"stage_id": stage.ID()}); err != nil {
				return "", err
			}
			out, _ := sjson.Set(successJSON(true), "stage_id", stage.ID())
			return out, nil
		},
	}
}

func (ts crmToolset) pipelineSummary() llm.Tool {
	return llm.Tool{
		Name:        "get_pipeline_summary",
		Description: "Return a high-level summary of the CRM pipeline: opportunity counts per stage.",
		Parameters:  objectSchema(map[string]interface{}{}),
		Run: func(ctx context.Context, args gjson.Result) (string, error) {
			stages, err := ts.crm.Stages(ctx, 0)
			if err != nil {
				return "", err
			}
			summary := map[string]int{}
			for _, stage := range stages {
				opportunities, err := ts.crm.SearchLeads(ctx, []interface{}{
					odoo.Cond("stage_id", "=", stage.ID()),
					odoo.Cond("type", "=", "opportunity"),
				}, 1000)
				if err != nil {
					return "", err
				}
				summary[stage.Str("name")] = len(opportunities)
			}
			out, err := json.Marshal(summary)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}
