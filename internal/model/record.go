package model

import "sort"

// Collection identifies one of the two record collections the engine reads.
type Collection string

const (
	CollectionPipeline  Collection = "pipeline"
	CollectionExecution Collection = "execution"
)

// Reserved raw keys populated by sources with the platform item id and title.
const (
	FieldItemID   = "_id"
	FieldItemName = "_name"
)

// RawRecord is an item exactly as received from a source: field name to
// string, number, bool, nil or platform JSON.
type RawRecord map[string]any

// RawCollection is one fetched collection. Schema may be nil, in which case
// it is inferred from the records.
type RawCollection struct {
	Collection Collection  `json:"collection"`
	Schema     *Schema     `json:"schema,omitempty"`
	Records    []RawRecord `json:"records"`
}

// FieldType is the normalization type of a field.
type FieldType string

const (
	TypeNumeric    FieldType = "numeric"
	TypeDate       FieldType = "date"
	TypeStatus     FieldType = "status"
	TypeText       FieldType = "text"
	TypeIdentifier FieldType = "identifier"
)

// Role binds a field to the meaning the metrics and linker depend on.
type Role string

const (
	RoleID                 Role = "id"
	RoleName               Role = "name"
	RoleStatus             Role = "status"
	RoleStage              Role = "stage"
	RoleSector             Role = "sector"
	RoleRevenue            Role = "revenue"
	RoleBilled             Role = "billed"
	RoleProbability        Role = "probability"
	RoleCloseDate          Role = "close_date"
	RoleTentativeCloseDate Role = "tentative_close_date"
	RoleCreatedDate        Role = "created_date"
	RoleStartDate          Role = "start_date"
	RoleEndDate            Role = "end_date"
	RoleLinkKey            Role = "link_key"
	RoleDealName           Role = "deal_name"
	RoleOwner              Role = "owner"
	RoleClient             Role = "client"
)

// AllRoles lists roles in resolution order.
var AllRoles = []Role{
	RoleID, RoleName, RoleLinkKey, RoleDealName, RoleStatus, RoleStage,
	RoleSector, RoleRevenue, RoleBilled, RoleProbability, RoleCloseDate,
	RoleTentativeCloseDate, RoleCreatedDate, RoleStartDate, RoleEndDate,
	RoleOwner, RoleClient,
}

// FieldSpec is a single schema field.
type FieldSpec struct {
	Name string    `json:"name" yaml:"name"`
	Type FieldType `json:"type" yaml:"type"`
}

// Schema describes a collection's fields, their types and role bindings.
type Schema struct {
	Fields   []FieldSpec     `json:"fields" yaml:"fields"`
	Roles    map[Role]string `json:"roles" yaml:"roles"`
	Required []Role          `json:"required" yaml:"required"`

	byName map[string]int
}

// NewSchema builds an indexed schema. Roles may be nil.
func NewSchema(fields []FieldSpec, roles map[Role]string, required []Role) *Schema {
	s := &Schema{
		Fields:   fields,
		Roles:    make(map[Role]string, len(roles)),
		Required: required,
	}
	for r, f := range roles {
		s.Roles[r] = f
	}
	if len(s.Required) == 0 {
		s.Required = []Role{RoleID, RoleName}
	}
	s.reindex()
	return s
}

func (s *Schema) reindex() {
	s.byName = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		s.byName[f.Name] = i
	}
}

// Field returns the spec for name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	if s.byName == nil {
		s.reindex()
	}
	i, ok := s.byName[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.Fields[i], true
}

// FieldFor returns the field bound to role, or "" when unbound.
func (s *Schema) FieldFor(role Role) string {
	if s == nil {
		return ""
	}
	return s.Roles[role]
}

// Has reports whether every role is bound.
func (s *Schema) Has(roles ...Role) bool {
	for _, r := range roles {
		if s.FieldFor(r) == "" {
			return false
		}
	}
	return true
}

// Missing returns the subset of roles that are not bound, in input order.
func (s *Schema) Missing(roles ...Role) []Role {
	var out []Role
	for _, r := range roles {
		if s.FieldFor(r) == "" {
			out = append(out, r)
		}
	}
	return out
}

// RoleOf returns the role a field is bound to.
func (s *Schema) RoleOf(field string) (Role, bool) {
	for _, r := range AllRoles {
		if s.Roles[r] == field {
			return r, true
		}
	}
	return "", false
}

// FieldNames returns the field names sorted.
func (s *Schema) FieldNames() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}
