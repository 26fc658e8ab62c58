package workflow

import (
	"context"
	"fmt"
	"time"

	"crmpilot/app/core/odoo"
	"crmpilot/app/pkg/logger"
)

// LostLeadRecovery re-engages lost leads once their cooling-off period
// has passed. It either targets one lead or scans all inactive ones.
type LostLeadRecovery struct {
	crm CRM
	now func() time.Time
}

func NewLostLeadRecovery(crm CRM) *LostLeadRecovery {
	return &LostLeadRecovery{crm: crm, now: time.Now}
}

func (w *LostLeadRecovery) Name() string {
	return "lost_lead_recovery"
}

func (w *LostLeadRecovery) Description() string {
	return "Re-engage lost leads that meet cooling-off and recovery criteria"
}

func (w *LostLeadRecovery) Execute(ctx context.Context, wfContext Context) Result {
	steps := []string{}
	coolingDays := wfContext.IntDefault("cooling_off_days", 30)
	cutoff := w.now().UTC().AddDate(0, 0, -int(coolingDays)).Format(odooTimeLayout)

	var leads []odoo.Record
	if leadID, ok := wfContext.Int("lead_id"); ok && leadID > 0 {
		lead, err := w.crm.GetLead(ctx, leadID)
		if err == nil {
			leads = append(leads, lead)
		}
	} else {
		var err error
		leads, err = w.crm.SearchLeads(ctx, []interface{}{
			odoo.Cond("active", "=", false),
			odoo.Cond("write_date", "<", cutoff),
		}, 20)
		if err != nil {
			return failure("Failed to search lost leads", err.Error(), steps)
		}
	}
	steps = append(steps, "get_lost_lead")

	if len(leads) == 0 {
		return Result{
			Success:       true,
			StepsExecuted: steps,
			Message:       "No lost leads eligible for recovery.",
		}
	}

	var eligible []odoo.Record
	for _, lead := range leads {
		if lead.Float("expected_revenue") > 0 {
			eligible = append(eligible, lead)
		}
	}
	steps = append(steps, "check_criteria")
	steps = append(steps, "draft_reengagement")

	for _, lead := range eligible {
		note := fmt.Sprintf("Cooling-off period of %d days has passed for '%s'. A re-engagement follow-up is due.", coolingDays, lead.Str("name"))
		if _, err := w.crm.AddLeadNote(ctx, lead.ID(), note); err != nil {
			logger.Error("[Workflow] re-engagement note for lead %d failed: %v", lead.ID(), err)
		}
	}
	steps = append(steps, "schedule_follow_up")

	return Result{
		Success:       true,
		StepsExecuted: steps,
		Message:       fmt.Sprintf("%d lost lead(s) eligible for recovery after %d-day cooling-off period.", len(eligible), coolingDays),
	}
}
