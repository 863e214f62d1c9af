package model

import "sort"

// FieldCaveat records how many retained records had field defaulted.
type FieldCaveat struct {
	Collection Collection `json:"collection"`
	Field      string     `json:"field"`
	Role       Role       `json:"role,omitempty"`
	Total      int        `json:"total"`
	Defaulted  int        `json:"defaulted"`
	Rate       float64    `json:"rate"`
}

// CaveatReport is the missing-data accounting for a sanitized snapshot.
type CaveatReport struct {
	Fields   []FieldCaveat                          `json:"fields"`
	Excluded map[Collection]map[ExclusionReason]int `json:"excluded,omitempty"`
}

// NewFieldCaveat computes the defaulted rate.
func NewFieldCaveat(c Collection, field string, role Role, total, defaulted int) FieldCaveat {
	fc := FieldCaveat{Collection: c, Field: field, Role: role, Total: total, Defaulted: defaulted}
	if total > 0 {
		fc.Rate = float64(defaulted) / float64(total)
	}
	return fc
}

// Merge returns a report holding both reports' entries in canonical order.
func (r CaveatReport) Merge(other CaveatReport) CaveatReport {
	out := CaveatReport{
		Fields:   append(append([]FieldCaveat{}, r.Fields...), other.Fields...),
		Excluded: map[Collection]map[ExclusionReason]int{},
	}
	for _, src := range []map[Collection]map[ExclusionReason]int{r.Excluded, other.Excluded} {
		for c, reasons := range src {
			if out.Excluded[c] == nil {
				out.Excluded[c] = map[ExclusionReason]int{}
			}
			for reason, n := range reasons {
				out.Excluded[c][reason] += n
			}
		}
	}
	out.Sort()
	return out
}

// Sort orders entries by collection then field.
func (r *CaveatReport) Sort() {
	sort.SliceStable(r.Fields, func(i, j int) bool {
		if r.Fields[i].Collection != r.Fields[j].Collection {
			return r.Fields[i].Collection < r.Fields[j].Collection
		}
		return r.Fields[i].Field < r.Fields[j].Field
	})
}

// Lookup returns the entry for a collection field.
func (r CaveatReport) Lookup(c Collection, field string) (FieldCaveat, bool) {
	for _, f := range r.Fields {
		if f.Collection == c && f.Field == field {
			return f, true
		}
	}
	return FieldCaveat{}, false
}

// ForRoles returns the entries of the fields bound to roles in schema,
// skipping unbound roles and duplicates.
func (r CaveatReport) ForRoles(c Collection, schema *Schema, roles ...Role) []FieldCaveat {
	var out []FieldCaveat
	seen := map[string]bool{}
	for _, role := range roles {
		field := schema.FieldFor(role)
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true
		if fc, ok := r.Lookup(c, field); ok {
			out = append(out, fc)
		}
	}
	return out
}

// ExcludedCount is the number of excluded records in c.
func (r CaveatReport) ExcludedCount(c Collection) int {
	n := 0
	for _, v := range r.Excluded[c] {
		n += v
	}
	return n
}

// Worst returns up to n entries with a non-zero rate, highest rate first.
func (r CaveatReport) Worst(n int) []FieldCaveat {
	var out []FieldCaveat
	for _, f := range r.Fields {
		if f.Defaulted > 0 {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rate != out[j].Rate {
			return out[i].Rate > out[j].Rate
		}
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].Field < out[j].Field
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
