package odoo

import "github.com/tidwall/gjson"

// Record is a read view over one search_read result. Odoo encodes empty
// fields as false and many2one fields as [id, display_name]; the accessors
// fold both quirks away.
type Record struct {
	raw gjson.Result
}

func ParseRecord(jsonText string) Record {
	return Record{raw: gjson.Parse(jsonText)}
}

func (r Record) Exists() bool {
	return r.raw.Exists() && r.raw.IsObject()
}

// JSON returns the raw record payload, suitable for tool output.
func (r Record) JSON() string {
	if !r.raw.Exists() {
		return "{}"
	}
	return r.raw.Raw
}

func (r Record) ID() int64 {
	return r.raw.Get("id").Int()
}

// Str returns the field as a string, or "" when absent or false-valued.
func (r Record) Str(field string) string {
	v := r.raw.Get(field)
	if !v.Exists() || v.Type == gjson.False {
		return ""
	}
	return v.String()
}

// Int returns the field as an integer, treating false as zero.
func (r Record) Int(field string) int64 {
	v := r.raw.Get(field)
	if !v.Exists() || v.Type == gjson.False {
		return 0
	}
	return v.Int()
}

// Float returns the field as a float, treating false as zero.
func (r Record) Float(field string) float64 {
	v := r.raw.Get(field)
	if !v.Exists() || v.Type == gjson.False {
		return 0
	}
	return v.Float()
}

func (r Record) Bool(field string) bool {
	return r.raw.Get(field).Bool()
}

// Set returns whether the field carries a usable value. Odoo's false, empty
// string, and empty array all count as unset.
func (r Record) Set(field string) bool {
	v := r.raw.Get(field)
	if !v.Exists() || v.Type == gjson.False {
		return false
	}
	if v.Type == gjson.String && v.String() == "" {
		return false
	}
	if v.IsArray() && len(v.Array()) == 0 {
		return false
	}
	return true
}

// Many2One resolves a relational field to its id, handling the
// [id, display_name] encoding, a bare id, and false.
func (r Record) Many2One(field string) (int64, bool) {
	v := r.raw.Get(field)
	if !v.Exists() || v.Type == gjson.False {
		return 0, false
	}
	if v.IsArray() {
		parts := v.Array()
		if len(parts) == 0 {
			return 0, false
		}
		return parts[0].Int(), true
	}
	id := v.Int()
	if id == 0 {
		return 0, false
	}
	return id, true
}
