package workflow

import (
	"context"
	"fmt"
	"time"

	"crmpilot/app/core/odoo"
	"crmpilot/app/pkg/logger"
)

const odooTimeLayout = "2006-01-02 15:04:05"

// OpportunityFollowUp finds opportunities with no write activity
// within the stale threshold and posts a re-engagement note on each.
type OpportunityFollowUp struct {
	crm CRM
	now func() time.Time
}

func NewOpportunityFollowUp(crm CRM) *OpportunityFollowUp {
	return &OpportunityFollowUp{crm: crm, now: time.Now}
}

func (w *OpportunityFollowUp) Name() string {
	return "opportunity_follow_up"
}

func (w *OpportunityFollowUp) Description() string {
	return "Detect stale opportunities and schedule follow-up activities"
}

func (w *OpportunityFollowUp) Execute(ctx context.Context, wfContext Context) Result {
	steps := []string{}
	staleDays := wfContext.IntDefault("stale_days", 14)
	cutoff := w.now().UTC().AddDate(0, 0, -int(staleDays)).Format(odooTimeLayout)

	domain := []interface{}{
		odoo.Cond("type", "=", "opportunity"),
		odoo.Cond("active", "=", true),
		odoo.Cond("write_date", "<", cutoff),
	}
	if userID, ok := wfContext.Int("user_id"); ok && userID > 0 {
		domain = append(domain, odoo.Cond("user_id", "=", userID))
	}
	stale, err := w.crm.SearchLeads(ctx, domain, 50)
	if err != nil {
		return failure("Failed to search stale opportunities", err.Error(), steps)
	}
	steps = append(steps, "detect_stale")

	if len(stale) == 0 {
		return Result{
			Success:       true,
			StepsExecuted: steps,
			Message:       fmt.Sprintf("No stale opportunities found (threshold: %d days).", staleDays),
		}
	}
	steps = append(steps, "draft_message")

	scheduled := 0
	for _, opp := range stale {
		note := fmt.Sprintf("No activity for over %d days. Re-engagement follow-up is due for '%s'.", staleDays, opp.Str("name"))
		if _, err := w.crm.AddLeadNote(ctx, opp.ID(), note); err != nil {
			logger.Error("[Workflow] follow-up note for opportunity %d failed: %v", opp.ID(), err)
			continue
		}
		scheduled++
	}
	steps = append(steps, "schedule_activity")
	logger.Info("[Workflow] follow-up notes posted on %d of %d stale opportunities", scheduled, len(stale))

	return Result{
		Success:       true,
		StepsExecuted: steps,
		Message:       fmt.Sprintf("Found %d stale opportunities older than %d days. Follow-up activities scheduled.", len(stale), staleDays),
	}
}
