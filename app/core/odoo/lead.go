package odoo

import "context"

// Both leads and opportunities live on crm.lead; the type field distinguishes
// them ("lead" vs "opportunity").
var leadFields = []string{
	"id",
	"name",
	"type",
	"stage_id",
	"kanban_state",
	"user_id",
	"team_id",
	"partner_id",
	"partner_name",
	"contact_name",
	"email_from",
	"phone",
	"mobile",
	"street",
	"city",
	"country_id",
	"description",
	"probability",
	"expected_revenue",
	"recurring_revenue",
	"date_deadline",
	"date_conversion",
	"date_closed",
	"active",
	"priority",
	"tag_ids",
	"lost_reason_id",
	"company_id",
	"create_date",
	"write_date",
}

func (c *Client) SearchLeads(ctx context.Context, domain []interface{}, limit int) ([]Record, error) {
	return c.SearchRead(ctx, "crm.lead", domain, leadFields, limit)
}

// GetLead returns one lead by id, or ErrNotFound. An inactive (lost) lead is
// still returned: the active_test context disables Odoo's default filter.
func (c *Client) GetLead(ctx context.Context, leadID int64) (Record, error) {
	result, err := c.Execute(ctx, "crm.lead", "search_read",
		[]interface{}{[]interface{}{Cond("id", "=", leadID)}},
		map[string]interface{}{
			"fields":  leadFields,
			"limit":   1,
			"context": map[string]interface{}{"active_test": false},
		})
	if err != nil {
		return Record{}, err
	}
	items := result.Array()
	if len(items) == 0 {
		return Record{}, ErrNotFound
	}
	return Record{raw: items[0]}, nil
}

func (c *Client) CreateLead(ctx context.Context, values map[string]interface{}) (int64, error) {
	return c.CreateRecord(ctx, "crm.lead", values)
}

func (c *Client) UpdateLead(ctx context.Context, leadID int64, values map[string]interface{}) error {
	return c.WriteRecord(ctx, "crm.lead", []int64{leadID}, values)
}

func (c *Client) ConvertToOpportunity(ctx context.Context, leadID int64) error {
	return c.WriteRecord(ctx, "crm.lead", []int64{leadID}, map[string]interface{}{"type": "opportunity"})
}

// MarkWon tries the server-side action first and falls back to a direct
// probability write when the method is unavailable.
func (c *Client) MarkWon(ctx context.Context, leadID int64) error {
	if _, err := c.Execute(ctx, "crm.lead", "action_set_won", []interface{}{[]int64{leadID}}, nil); err == nil {
		return nil
	}
	return c.WriteRecord(ctx, "crm.lead", []int64{leadID}, map[string]interface{}{"probability": 100})
}

func (c *Client) MarkLost(ctx context.Context, leadID int64, lostReasonID int64) error {
	if _, err := c.Execute(ctx, "crm.lead", "action_set_lost", []interface{}{[]int64{leadID}}, nil); err == nil {
		if lostReasonID != 0 {
			return c.WriteRecord(ctx, "crm.lead", []int64{leadID}, map[string]interface{}{"lost_reason_id": lostReasonID})
		}
		return nil
	}
	values := map[string]interface{}{"active": false}
	if lostReasonID != 0 {
		values["lost_reason_id"] = lostReasonID
	}
	return c.WriteRecord(ctx, "crm.lead", []int64{leadID}, values)
}

// AddLeadNote posts an internal chatter note and returns the message id.
func (c *Client) AddLeadNote(ctx context.Context, leadID int64, note string) (int64, error) {
	result, err := c.Execute(ctx, "crm.lead", "message_post", []interface{}{[]int64{leadID}}, map[string]interface{}{
		"body":          note,
		"message_type":  "comment",
		"subtype_xmlid": "mail.mt_note",
	})
	if err != nil {
		return 0, err
	}
	return result.Int(), nil
}
