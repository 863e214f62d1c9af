package model

import "time"

// Fallback values substituted for defaulted text and grouping keys.
const (
	Unspecified = "unspecified"
	Unscheduled = "unscheduled"
)

// DateLayout is the canonical ISO calendar date layout.
const DateLayout = "2006-01-02"

// CleanRecord is a sanitized record. Every schema field appears in exactly
// one of the typed maps (dates only when present) and in Validity.
type CleanRecord struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Status   Status               `json:"status"`
	Sector   string               `json:"sector"`
	Numeric  map[string]float64   `json:"numeric,omitempty"`
	Dates    map[string]time.Time `json:"dates,omitempty"`
	Text     map[string]string    `json:"text,omitempty"`
	Validity map[string]bool      `json:"validity"`
}

// Number returns the numeric value of field (0 when absent).
func (r *CleanRecord) Number(field string) float64 {
	return r.Numeric[field]
}

// Date returns the date in field and whether it is present.
func (r *CleanRecord) Date(field string) (time.Time, bool) {
	if field == "" {
		return time.Time{}, false
	}
	d, ok := r.Dates[field]
	return d, ok
}

// Valid reports whether field held a usable value before defaulting.
func (r *CleanRecord) Valid(field string) bool {
	return r.Validity[field]
}

// ExclusionReason says why a record was routed out of the retained set.
type ExclusionReason string

const (
	ExcludedMissingIdentity ExclusionReason = "missing_identity"
	ExcludedHeaderRow       ExclusionReason = "header_row"
	ExcludedDuplicateID     ExclusionReason = "duplicate_id"
)

// ExcludedRecord is a raw record the sanitizer refused to retain.
type ExcludedRecord struct {
	Index  int             `json:"index"`
	ID     string          `json:"id,omitempty"`
	Reason ExclusionReason `json:"reason"`
	Roles  []Role          `json:"roles,omitempty"`
}

// CleanCollection is the sanitizer output for one collection.
type CleanCollection struct {
	Collection Collection       `json:"collection"`
	Schema     *Schema          `json:"schema"`
	Records    []CleanRecord    `json:"records"`
	Excluded   []ExcludedRecord `json:"excluded"`
}

// Total is the number of raw records the collection was built from.
func (c *CleanCollection) Total() int {
	return len(c.Records) + len(c.Excluded)
}

// ByID indexes retained records by id.
func (c *CleanCollection) ByID() map[string]*CleanRecord {
	out := make(map[string]*CleanRecord, len(c.Records))
	for i := range c.Records {
		out[c.Records[i].ID] = &c.Records[i]
	}
	return out
}

// DateOf returns the first present date among the fields bound to roles.
func (c *CleanCollection) DateOf(r *CleanRecord, roles ...Role) (time.Time, bool) {
	for _, role := range roles {
		if d, ok := r.Date(c.Schema.FieldFor(role)); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// NumberOf returns the value of the field bound to role and its validity.
func (c *CleanCollection) NumberOf(r *CleanRecord, role Role) (float64, bool) {
	f := c.Schema.FieldFor(role)
	if f == "" {
		return 0, false
	}
	return r.Number(f), r.Valid(f)
}

// TextOf returns the text of the field bound to role when it is valid.
func (c *CleanCollection) TextOf(r *CleanRecord, role Role) (string, bool) {
	f := c.Schema.FieldFor(role)
	if f == "" || !r.Valid(f) {
		return "", false
	}
	return r.Text[f], true
}
