// Package semantic holds the semantic-layer schema that describes a dataset
// (tables, measures, dimensions, joins) and the builder that turns structured
// queries over that schema into SQL.
package semantic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSchema is returned when a schema payload cannot be parsed or
// violates structural rules.
var ErrInvalidSchema = errors.New("invalid semantic schema")

// Measure is an aggregatable member of a table.
type Measure struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	SQL  string `json:"sql,omitempty" yaml:"sql,omitempty"`
}

// Dimension is a groupable member of a table.
type Dimension struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	SQL  string `json:"sql,omitempty" yaml:"sql,omitempty"`
}

// Join links a table to another one. SQL may reference members with
// ${Table.dimension} templates.
type Join struct {
	Name     string `json:"name" yaml:"name"`
	JoinType string `json:"join_type" yaml:"join_type"`
	SQL      string `json:"sql" yaml:"sql"`
}

// Table describes one logical table: Name is the semantic name used in
// queries, Table the physical table it maps to.
type Table struct {
	Name       string      `json:"name" yaml:"name"`
	Table      string      `json:"table" yaml:"table"`
	Measures   []Measure   `json:"measures" yaml:"measures"`
	Dimensions []Dimension `json:"dimensions" yaml:"dimensions"`
	Joins      []Join      `json:"joins" yaml:"joins"`
}

// Schema is the canonical semantic description of a dataset.
type Schema []Table

// Source is a schema payload as produced by a language model or a cache:
// either raw text or an already structured value.
type Source struct {
	raw        string
	value      any
	structured bool
}

// Raw wraps a textual schema payload (a JSON array of tables, a single
// table object or {"tables": [...]}, optionally inside a markdown code fence).
func Raw(s string) Source { return Source{raw: s} }

// Structured wraps an already decoded schema value: Schema, []Table, Table,
// *Table, or generic JSON-shaped data (map[string]any, []any).
func Structured(v any) Source { return Source{value: v, structured: true} }

// Parse resolves a Source into its canonical Schema. A single table object
// and an array holding that same object produce identical results, as do raw
// and structured forms of the same data.
func Parse(src Source) (Schema, error) {
	if !src.structured {
		return parseText(src.raw)
	}

	switch v := src.value.(type) {
	case nil:
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidSchema)
	case Schema:
		return canonicalize(append(Schema(nil), v...))
	case []Table:
		return canonicalize(append(Schema(nil), v...))
	case Table:
		return canonicalize(Schema{v})
	case *Table:
		if v == nil {
			return nil, fmt.Errorf("%w: empty payload", ErrInvalidSchema)
		}
		return canonicalize(Schema{*v})
	case string:
		return parseText(v)
	case []byte:
		return parseText(string(v))
	}

	b, err := json.Marshal(src.value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return parseText(string(b))
}

func parseText(s string) (Schema, error) {
	payload := bytes.TrimSpace([]byte(stripFence(s)))
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidSchema)
	}

	var out Schema
	switch payload[0] {
	case '[':
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	case '{':
		// JSON-object-only providers wrap the array as {"tables": [...]}.
		var wrapper struct {
			Name   *string         `json:"name"`
			Tables json.RawMessage `json:"tables"`
		}
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		if wrapper.Name == nil && len(wrapper.Tables) > 0 {
			return parseText(string(wrapper.Tables))
		}
		var t Table
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		out = Schema{t}
	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", ErrInvalidSchema)
	}
	return canonicalize(out)
}

// stripFence removes a surrounding ```json ... ``` block when present.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return s
}

// canonicalize fills defaults, validates, and normalizes empty collections
// so equal schemas compare equal regardless of their origin.
func canonicalize(s Schema) (Schema, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: no tables", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(s))
	out := make(Schema, len(s))
	for i, t := range s {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: table %d has no name", ErrInvalidSchema, i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate table %q", ErrInvalidSchema, t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Table == "" {
			t.Table = t.Name
		}
		for _, m := range t.Measures {
			if m.Name == "" || m.Type == "" {
				return nil, fmt.Errorf("%w: table %q has a measure without name or type", ErrInvalidSchema, t.Name)
			}
		}
		for _, d := range t.Dimensions {
			if d.Name == "" {
				return nil, fmt.Errorf("%w: table %q has a dimension without name", ErrInvalidSchema, t.Name)
			}
		}
		t.Measures = append(make([]Measure, 0, len(t.Measures)), t.Measures...)
		t.Dimensions = append(make([]Dimension, 0, len(t.Dimensions)), t.Dimensions...)
		t.Joins = append(make([]Join, 0, len(t.Joins)), t.Joins...)
		out[i] = t
	}
	return out, nil
}

// String renders the schema as compact JSON. The output parses back to an
// equal Schema and is what schema caches store.
func (s Schema) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// FindTable returns the table with the given semantic name.
func (s Schema) FindTable(name string) (Table, bool) {
	for _, t := range s {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// FindDimension resolves a "Table.dimension" member.
func (s Schema) FindDimension(member string) (Table, Dimension, bool) {
	tableName, field, ok := splitMember(member)
	if !ok {
		return Table{}, Dimension{}, false
	}
	t, ok := s.FindTable(tableName)
	if !ok {
		return Table{}, Dimension{}, false
	}
	for _, d := range t.Dimensions {
		if d.Name == field {
			return t, d, true
		}
	}
	return t, Dimension{}, false
}

// FindMeasure resolves a "Table.measure" member.
func (s Schema) FindMeasure(member string) (Table, Measure, bool) {
	tableName, field, ok := splitMember(member)
	if !ok {
		return Table{}, Measure{}, false
	}
	t, ok := s.FindTable(tableName)
	if !ok {
		return Table{}, Measure{}, false
	}
	for _, m := range t.Measures {
		if m.Name == field {
			return t, m, true
		}
	}
	return t, Measure{}, false
}

func splitMember(member string) (table, field string, ok bool) {
	table, field, ok = strings.Cut(member, ".")
	if !ok || table == "" || field == "" || strings.Contains(field, ".") {
		return "", "", false
	}
	return table, field, true
}
