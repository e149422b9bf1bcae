// Package rows holds the transient shapes an import batch is made of: raw
// spreadsheet rows keyed by column label and user supplied column mappings.
package rows

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// PlaceholderMarker prefixes labels generated for columns without a header.
const PlaceholderMarker = "__EMPTY"

// Row is one unprocessed spreadsheet row. Columns keeps the order the
// labels appeared in; Values holds strings, numbers or nil.
type Row struct {
	Columns []string
	Values  map[string]any
}

// New builds a row from ordered labels and cells. Missing cells are nil.
func New(columns []string, cells []any) Row {
	r := Row{Columns: make([]string, 0, len(columns)), Values: make(map[string]any, len(columns))}
	for i, col := range columns {
		var v any
		if i < len(cells) {
			v = cells[i]
		}
		r.Set(col, v)
	}
	return r
}

// FromMap builds a row from a map. Column order is the order of keys.
func FromMap(keys []string, values map[string]any) Row {
	r := Row{Columns: make([]string, 0, len(keys)), Values: make(map[string]any, len(keys))}
	for _, k := range keys {
		r.Set(k, values[k])
	}
	return r
}

// Set stores v under label, appending the label when it is new.
func (r *Row) Set(label string, v any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, exists := r.Values[label]; !exists {
		r.Columns = append(r.Columns, label)
	}
	r.Values[label] = v
}

// Get returns the cell stored under label.
func (r Row) Get(label string) (any, bool) {
	v, ok := r.Values[label]
	return v, ok
}

// Len is the number of cells.
func (r Row) Len() int {
	return len(r.Columns)
}

// IsBlank reports whether v is nil or a whitespace-only string.
func IsBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	default:
		return false
	}
}

// Describe renders the row as "label=value, ..." in column order.
func (r Row) Describe() string {
	parts := make([]string, 0, len(r.Columns))
	for _, col := range r.Columns {
		v := r.Values[col]
		if v == nil {
			v = ""
		}
		parts = append(parts, fmt.Sprintf("%s=%v", col, v))
	}
	return strings.Join(parts, ", ")
}

// UnmarshalJSON decodes a JSON object preserving key order. Numbers are kept
// as json.Number so no precision is lost before coercion.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("row must be a JSON object")
	}

	*r = Row{Values: make(map[string]any)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected row key %v", keyTok)
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("row key %q: %w", key, err)
		}
		switch v.(type) {
		case nil, string, json.Number, bool:
		default:
			// nested objects and arrays are not cell values
			v = fmt.Sprint(v)
		}
		r.Set(key, v)
	}

	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the row as an object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Mapping maps a source column label to a canonical field name.
type Mapping map[string]string

// SourcesFor returns the source columns mapped to field, compared
// case-insensitively, in label order.
func (m Mapping) SourcesFor(field string) []string {
	var sources []string
	for source, target := range m {
		if strings.EqualFold(strings.TrimSpace(target), field) {
			sources = append(sources, source)
		}
	}
	slices.Sort(sources)
	return sources
}
