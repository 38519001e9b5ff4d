package integrator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FieldMapping binds one canonical field to a vendor response field. In YAML
// it is either a bare string (the source field name) or a mapping with
// source, transform, and default keys.
type FieldMapping struct {
	// Source is the vendor field, with dots descending into nested objects.
	Source string `yaml:"source"`
	// Transform names a registered pure function applied to the raw value.
	Transform string `yaml:"transform,omitempty"`
	// Default is used when the source field is absent or empty.
	Default any `yaml:"default,omitempty"`
}

// UnmarshalYAML accepts the shorthand scalar form.
func (m *FieldMapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		m.Source = node.Value
		return nil
	}
	type plain FieldMapping
	return node.Decode((*plain)(m))
}

// DataMapping maps canonical field names to vendor fields. Canonical fields
// recognized by the mapper: id, type, status, address, description,
// applicant, fee, submitted_at, issued_at.
type DataMapping map[string]FieldMapping

// Transform is a pure value conversion applied during mapping.
type Transform func(any) (any, error)

// transforms is the registry of named transforms available to mapping
// tables. Each is pure and independently testable.
var transforms = map[string]Transform{
	"trim":   func(v any) (any, error) { return strings.TrimSpace(asString(v)), nil },
	"lower":  func(v any) (any, error) { return strings.ToLower(asString(v)), nil },
	"upper":  func(v any) (any, error) { return strings.ToUpper(asString(v)), nil },
	"amount": transformAmount,
	"date":   transformDate,
	"status": transformStatus,
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// transformAmount parses currency-ish values ("$1,250.00", "75", 75.0) into
// a float64.
func transformAmount(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	}
	s := strings.TrimSpace(asString(v))
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0.0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", asString(v), err)
	}
	return f, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
}

// transformDate normalizes a handful of vendor date formats to RFC 3339
// date form.
func transformDate(v any) (any, error) {
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return "", nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}

var statusAliases = map[string]string{
	"open":        "active",
	"in review":   "under_review",
	"in_review":   "under_review",
	"plan review": "under_review",
	"approved":    "approved",
	"issued":      "issued",
	"finaled":     "closed",
	"final":       "closed",
	"closed":      "closed",
	"complete":    "closed",
	"expired":     "expired",
	"withdrawn":   "withdrawn",
	"denied":      "denied",
	"rejected":    "denied",
}

// transformStatus folds vendor status vocabularies into a canonical set.
// Unknown statuses pass through lowercased rather than erroring.
func transformStatus(v any) (any, error) {
	s := strings.ToLower(strings.TrimSpace(asString(v)))
	if canonical, ok := statusAliases[s]; ok {
		return canonical, nil
	}
	return s, nil
}

// MapRecord evaluates a mapping table against one vendor record. Missing or
// empty source fields resolve to the mapping's default; canonical fields
// with neither a value nor a default are omitted. Transform errors skip the
// field rather than failing the record.
func MapRecord(mapping DataMapping, source map[string]any) map[string]any {
	out := make(map[string]any, len(mapping))
	for field, m := range mapping {
		v, ok := lookupPath(source, m.Source)
		if !ok || isEmptyValue(v) {
			if m.Default != nil {
				out[field] = m.Default
			}
			continue
		}
		if m.Transform != "" {
			mapped, err := transforms[m.Transform](v)
			if err != nil {
				if m.Default != nil {
					out[field] = m.Default
				}
				continue
			}
			v = mapped
		}
		out[field] = v
	}
	return out
}

// lookupPath walks dotted paths through nested JSON objects.
func lookupPath(source map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = source
	for _, part := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// recordFromFields builds a canonical Record from mapped fields.
func recordFromFields(fields map[string]any) Record {
	rec := Record{
		ID:          asString(fields["id"]),
		Type:        asString(fields["type"]),
		Status:      asString(fields["status"]),
		Address:     asString(fields["address"]),
		Description: asString(fields["description"]),
		Applicant:   asString(fields["applicant"]),
		SubmittedAt: asString(fields["submitted_at"]),
		IssuedAt:    asString(fields["issued_at"]),
	}
	switch fee := fields["fee"].(type) {
	case float64:
		rec.Fee = fee
	case int:
		rec.Fee = float64(fee)
	case string:
		if v, err := transformAmount(fee); err == nil {
			rec.Fee = v.(float64)
		}
	}
	return rec
}
