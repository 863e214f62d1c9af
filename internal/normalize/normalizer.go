// Package normalize converts raw platform values into canonical typed values.
// Every function is pure and total: a value that cannot be interpreted comes
// back as the type's default with Valid=false, never as an error.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/policy"
)

// Value is a canonical value of one FieldType.
type Value struct {
	Type   model.FieldType
	Number float64
	Date   time.Time
	Status model.Status
	Text   string
	Valid  bool
}

// Normalizer normalizes values for one collection. It is safe for
// concurrent use.
type Normalizer struct {
	policy     *policy.Policy
	collection model.Collection
}

// New returns a Normalizer bound to c's status tables.
func New(p *policy.Policy, c model.Collection) *Normalizer {
	return &Normalizer{policy: p, collection: c}
}

// Normalize dispatches on t.
func (n *Normalizer) Normalize(raw any, t model.FieldType) Value {
	v := Value{Type: t}
	switch t {
	case model.TypeNumeric:
		v.Number, v.Valid = n.Number(raw)
	case model.TypeDate:
		v.Date, v.Valid = n.Date(raw)
	case model.TypeStatus:
		v.Status, v.Valid = n.Status(raw)
	case model.TypeIdentifier:
		v.Text, v.Valid = n.Identifier(raw)
	default:
		v.Type = model.TypeText
		v.Text, v.Valid = n.Text(raw)
	}
	return v
}

// Canonical renders v in the form that normalizes back to itself.
func (v Value) Canonical() string {
	switch v.Type {
	case model.TypeNumeric:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case model.TypeDate:
		if v.Date.IsZero() {
			return ""
		}
		return v.Date.Format(model.DateLayout)
	case model.TypeStatus:
		return string(v.Status)
	default:
		return v.Text
	}
}

// stringify flattens a raw value to text. Platform JSON objects are
// unwrapped through keys, in order.
func stringify(raw any, keys ...string) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return unwrapJSON(v, keys...), true
	case []byte:
		return unwrapJSON(string(v), keys...), true
	case json.Number:
		return v.String(), true
	case float64:
		return formatFloat(v), true
	case float32:
		return formatFloat(float64(v)), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	case time.Time:
		if v.IsZero() {
			return "", false
		}
		return v.Format(time.RFC3339), true
	case map[string]any:
		for _, k := range keys {
			if inner, ok := v[k]; ok {
				return stringify(inner, keys...)
			}
		}
		return "", false
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

func unwrapJSON(s string, keys ...string) string {
	t := strings.TrimSpace(s)
	if len(t) < 2 {
		return s
	}
	switch {
	case t[0] == '{' && len(keys) > 0:
		var obj map[string]any
		if err := json.Unmarshal([]byte(t), &obj); err != nil {
			return s
		}
		out, _ := stringify(obj, keys...)
		return out
	case t[0] == '"':
		var str string
		if err := json.Unmarshal([]byte(t), &str); err != nil {
			return s
		}
		return str
	}
	return s
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// cleanLabel lowercases, trims and collapses internal whitespace.
func cleanLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
