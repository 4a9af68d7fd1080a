package domain

import (
	"bytes"
	"encoding/json"
)

// Field is a single named input value.
type Field struct {
	Name  string
	Value string
}

// Inputs is an ordered mapping of column name to value.
// It marshals as a JSON object that keeps the input column order.
type Inputs []Field

// Get returns the value stored under name.
func (in Inputs) Get(name string) (string, bool) {
	for _, f := range in {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns the inputs as a plain map for request payloads.
func (in Inputs) Map() map[string]string {
	m := make(map[string]string, len(in))
	for _, f := range in {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON writes the fields as an object in column order.
func (in Inputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range in {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
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

// Row is one unit of work read from the input file.
type Row struct {
	ID     string
	Inputs Inputs
}
