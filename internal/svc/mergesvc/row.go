package mergesvc

import (
	"bytes"
	"strings"

	"github.com/segmentio/encoding/json"
)

type Field struct {
	Column string
	Value  string
}

// RecipientRow is one CSV line keyed by header, in header order.
type RecipientRow struct {
	Fields []Field
}

// Get returns the value of the exact column name.
func (r RecipientRow) Get(column string) (string, bool) {
	for _, f := range r.Fields {
		if f.Column == column {
			return f.Value, true
		}
	}

	return "", false
}

// Name prefers the "name" column over "Name".
func (r RecipientRow) Name() string {
	if v, ok := r.Get("name"); ok && v != "" {
		return v
	}

	v, _ := r.Get("Name")
	return v
}

// set overwrites an existing column in place, so a repeated header keeps its first position and last value.
func (r *RecipientRow) set(column, value string) {
	for i := range r.Fields {
		if r.Fields[i].Column == column {
			r.Fields[i].Value = value
			return
		}
	}

	r.Fields = append(r.Fields, Field{Column: column, Value: value})
}

// MarshalJSON writes the row as an object whose keys keep the header order.
func (r RecipientRow) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(f.Column)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Personalize replaces every literal [column] with the row value, in header order,
// skipping pairs where the column or the value is empty.
func Personalize(text string, row RecipientRow) string {
	for _, f := range row.Fields {
		if f.Column == "" || f.Value == "" {
			continue
		}

		text = strings.ReplaceAll(text, "["+f.Column+"]", f.Value)
	}

	return text
}
