package sanitize

import (
	"sort"
	"strings"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/normalize"
	"github.com/sells-group/bi-agent/internal/policy"
)

// roleTypes fixes the type of role-bound fields.
var roleTypes = map[model.Role]model.FieldType{
	model.RoleID:                 model.TypeIdentifier,
	model.RoleLinkKey:            model.TypeIdentifier,
	model.RoleName:               model.TypeText,
	model.RoleDealName:           model.TypeText,
	model.RoleSector:             model.TypeText,
	model.RoleOwner:              model.TypeText,
	model.RoleClient:             model.TypeText,
	model.RoleStatus:             model.TypeStatus,
	model.RoleStage:              model.TypeStatus,
	model.RoleRevenue:            model.TypeNumeric,
	model.RoleBilled:             model.TypeNumeric,
	model.RoleProbability:        model.TypeNumeric,
	model.RoleCloseDate:          model.TypeDate,
	model.RoleTentativeCloseDate: model.TypeDate,
	model.RoleCreatedDate:        model.TypeDate,
	model.RoleStartDate:          model.TypeDate,
	model.RoleEndDate:            model.TypeDate,
}

// InferSchema builds a schema for records. Declared role bindings win and
// fix the type of the bound field; declared types apply to unbound fields.
// Everything else is resolved from the policy's role hints and from sampled
// values. It never fails: unrecognized fields become text.
func InferSchema(p *policy.Policy, c model.Collection, records []model.RawRecord, declared *model.Schema) *model.Schema {
	names := fieldNames(records, declared)

	roles := map[model.Role]string{}
	claimed := map[string]bool{}
	var required []model.Role
	if declared != nil {
		for r, f := range declared.Roles {
			roles[r] = f
			claimed[f] = true
		}
		required = declared.Required
	}
	resolveRoles(p.RoleHints[c], names, roles, claimed)

	fieldRole := make(map[string]model.Role, len(roles))
	for _, r := range model.AllRoles {
		if f, ok := roles[r]; ok {
			if _, taken := fieldRole[f]; !taken {
				fieldRole[f] = r
			}
		}
	}

	n := normalize.New(p, c)
	fields := make([]model.FieldSpec, 0, len(names))
	for _, name := range names {
		if r, ok := fieldRole[name]; ok {
			fields = append(fields, model.FieldSpec{Name: name, Type: roleTypes[r]})
			continue
		}
		if declared != nil {
			if spec, ok := declared.Field(name); ok && spec.Type != "" {
				fields = append(fields, spec)
				continue
			}
		}
		fields = append(fields, model.FieldSpec{Name: name, Type: detectType(n, p, name, records)})
	}

	return model.NewSchema(fields, roles, required)
}

// fieldNames returns every field seen, reserved item keys first, then
// sorted, so inference is independent of map order.
func fieldNames(records []model.RawRecord, declared *model.Schema) []string {
	seen := map[string]bool{}
	if declared != nil {
		for _, f := range declared.Fields {
			seen[f.Name] = true
		}
		for _, f := range declared.Roles {
			seen[f] = true
		}
	}
	for _, rec := range records {
		for k := range rec {
			seen[k] = true
		}
	}

	var names []string
	for k := range seen {
		if k != model.FieldItemID && k != model.FieldItemName {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	var out []string
	for _, k := range []string{model.FieldItemID, model.FieldItemName} {
		if seen[k] {
			out = append(out, k)
		}
	}
	return append(out, names...)
}

// resolveRoles binds each unbound role to the first unclaimed field whose
// title matches a hint: exact title matches in hint order first, then
// whole-word containment in hint order.
func resolveRoles(hints map[model.Role][]string, names []string, roles map[model.Role]string, claimed map[string]bool) {
	titles := make([]string, len(names))
	for i, n := range names {
		titles[i] = strings.Join(strings.Fields(strings.ToLower(n)), " ")
	}

	// A title that is some role's exact hint is reserved for that role.
	owner := map[string]model.Role{}
	for _, role := range model.AllRoles {
		for _, hint := range hints[role] {
			if _, ok := owner[strings.ToLower(hint)]; !ok {
				owner[strings.ToLower(hint)] = role
			}
		}
	}

	bind := func(match func(title, hint string) bool) {
		for _, role := range model.AllRoles {
			if _, ok := roles[role]; ok {
				continue
			}
		hintLoop:
			for _, hint := range hints[role] {
				hint = strings.ToLower(hint)
				for i, title := range titles {
					if claimed[names[i]] || !match(title, hint) {
						continue
					}
					if o, ok := owner[title]; ok && o != role {
						continue
					}
					roles[role] = names[i]
					claimed[names[i]] = true
					break hintLoop
				}
			}
		}
	}

	bind(func(title, hint string) bool { return title == hint })
	bind(containsWord)
}

// containsWord reports whether hint occurs in title on word boundaries.
func containsWord(title, hint string) bool {
	for from := 0; ; {
		i := strings.Index(title[from:], hint)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(hint)
		if boundary(title, start-1) && boundary(title, end) {
			return true
		}
		from = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}

// detectType samples non-null values and picks date or numeric when at
// least TypeThreshold of them parse as such.
func detectType(n *normalize.Normalizer, p *policy.Policy, field string, records []model.RawRecord) model.FieldType {
	var total, dates, numbers int
	for _, rec := range records {
		if total >= p.SampleSize {
			break
		}
		raw, ok := rec[field]
		if !ok || raw == nil {
			continue
		}
		if s, isStr := raw.(string); isStr && p.IsNullToken(strings.ToLower(strings.TrimSpace(s))) {
			continue
		}
		total++
		if _, ok := n.Date(raw); ok {
			dates++
		}
		if _, ok := n.Number(raw); ok {
			numbers++
		}
	}
	if total == 0 {
		return model.TypeText
	}
	threshold := p.TypeThreshold * float64(total)
	switch {
	case float64(dates) >= threshold:
		return model.TypeDate
	case float64(numbers) >= threshold:
		return model.TypeNumeric
	default:
		return model.TypeText
	}
}
