package schema

import (
	"bytes"
	"encoding/json"
)

// Row is a single record keyed by column name. Field order is kept so rows
// print and serialize in the order they were read.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	return Row{Columns: columns, Values: values}
}

// Get returns the value stored under column and whether it was present.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Reorder returns the values of r laid out in columns order. Columns r does
// not carry come back as nil, which binds as SQL NULL.
func (r Row) Reorder(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i], _ = r.Get(c)
	}
	return out
}

// Map returns the row as an unordered map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Values[i])
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
