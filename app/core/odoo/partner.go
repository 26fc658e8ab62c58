package odoo

import "context"

var partnerFields = []string{
	"id",
	"name",
	"email",
	"phone",
	"mobile",
	"street",
	"city",
	"country_id",
	"is_company",
	"customer_rank",
	"supplier_rank",
	"active",
}

// SearchPartners matches the query against name and email.
func (c *Client) SearchPartners(ctx context.Context, query string, limit int) ([]Record, error) {
	domain := []interface{}{
		"|",
		Cond("name", "ilike", query),
		Cond("email", "ilike", query),
	}
	return c.SearchRead(ctx, "res.partner", domain, partnerFields, limit)
}

func (c *Client) GetPartner(ctx context.Context, partnerID int64) (Record, error) {
	records, err := c.SearchRead(ctx, "res.partner", []interface{}{Cond("id", "=", partnerID)}, partnerFields, 1)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[0], nil
}

func (c *Client) CreatePartner(ctx context.Context, values map[string]interface{}) (int64, error) {
	return c.CreateRecord(ctx, "res.partner", values)
}

func (c *Client) UpdatePartner(ctx context.Context, partnerID int64, values map[string]interface{}) error {
	return c.WriteRecord(ctx, "res.partner", []int64{partnerID}, values)
}
