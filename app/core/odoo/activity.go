package odoo

import (
	"context"
	"fmt"
	"strings"
)

var activityFields = []string{
	"id",
	"res_id",
	"res_model",
	"res_name",
	"activity_type_id",
	"summary",
	"note",
	"date_deadline",
	"user_id",
	"state",
}

// CreateActivity schedules an activity on any record. The res_model_id is
// resolved through ir.model as mail.activity requires it.
func (c *Client) CreateActivity(ctx context.Context, resModel string, resID int64, activityTypeID int64, summary string, note string, dateDeadline string) (int64, error) {
	modelIDs, err := c.Execute(ctx, "ir.model", "search",
		[]interface{}{[]interface{}{Cond("model", "=", resModel)}},
		map[string]interface{}{"limit": 1})
	if err != nil {
		return 0, err
	}
	ids := modelIDs.Array()
	if len(ids) == 0 {
		return 0, fmt.Errorf("odoo model not found: %s", resModel)
	}
	return c.CreateRecord(ctx, "mail.activity", map[string]interface{}{
		"res_model_id":     ids[0].Int(),
		"res_id":           resID,
		"activity_type_id": activityTypeID,
		"summary":          summary,
		"note":             note,
		"date_deadline":    dateDeadline,
	})
}

// MarkActivityDone records feedback on an activity, falling back to deletion
// when the feedback action is unavailable.
func (c *Client) MarkActivityDone(ctx context.Context, activityID int64, feedback string) error {
	if _, err := c.Execute(ctx, "mail.activity", "action_feedback", []interface{}{[]int64{activityID}}, map[string]interface{}{
		"feedback": feedback,
	}); err == nil {
		return nil
	}
	return c.Unlink(ctx, "mail.activity", []int64{activityID})
}

func (c *Client) ListActivities(ctx context.Context, resModel string, resID int64) ([]Record, error) {
	domain := []interface{}{
		Cond("res_model", "=", resModel),
		Cond("res_id", "=", resID),
	}
	return c.SearchRead(ctx, "mail.activity", domain, activityFields, 0)
}

func (c *Client) OverdueActivities(ctx context.Context, userID int64) ([]Record, error) {
	domain := []interface{}{Cond("state", "=", "overdue")}
	if userID != 0 {
		domain = append(domain, Cond("user_id", "=", userID))
	}
	return c.SearchRead(ctx, "mail.activity", domain, activityFields, 0)
}

// ResolveActivityTypeID maps a type name like "call" or "email" to its
// mail.activity.type id, falling back to well-known Odoo 16 defaults
// when the lookup finds nothing.
func (c *Client) ResolveActivityTypeID(ctx context.Context, activityType string) int64 {
	records, err := c.SearchRead(ctx, "mail.activity.type",
		[]interface{}{Cond("name", "ilike", activityType)},
		[]string{"id", "name"}, 1)
	if err == nil && len(records) > 0 {
		return records[0].ID()
	}

	switch strings.ToLower(strings.TrimSpace(activityType)) {
	case "call":
		return 2
	case "meeting":
		return 1
	default:
		return 4
	}
}
