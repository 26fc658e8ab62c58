package odoo

import "context"

var stageFields = []string{"id", "name", "sequence", "fold", "team_id", "requirements"}

// Stages returns all pipeline stages, optionally filtered by sales team.
func (c *Client) Stages(ctx context.Context, teamID int64) ([]Record, error) {
	var domain []interface{}
	if teamID != 0 {
		domain = []interface{}{Cond("team_id", "=", teamID)}
	}
	return c.SearchRead(ctx, "crm.stage", domain, stageFields, 0)
}

// StageByName returns the first stage matching the name case-insensitively,
// or ErrNotFound.
func (c *Client) StageByName(ctx context.Context, name string) (Record, error) {
	records, err := c.SearchRead(ctx, "crm.stage", []interface{}{Cond("name", "ilike", name)}, stageFields, 1)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[0], nil
}
