package models

import (
	"bytes"
	"encoding/json"
)

// Tool is a versioned, configured extraction procedure. Every fact stored by
// the indexer is attributed to exactly one tool. The (Name, Version,
// Configuration) triple is the natural key; ID is the surrogate assigned by
// the registry on first registration. Tools are immutable once created.
type Tool struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	Configuration json.RawMessage `json:"configuration"`
}

// ConfigurationKey returns the configuration in a canonical byte form usable
// for equality comparison. A nil configuration compares equal to "{}".
func (t Tool) ConfigurationKey() string {
	if len(t.Configuration) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, t.Configuration); err != nil {
		return string(t.Configuration)
	}
	return buf.String()
}

// NaturalKey identifies a tool independently of its surrogate id.
func (t Tool) NaturalKey() string {
	return t.Name + "\x00" + t.Version + "\x00" + t.ConfigurationKey()
}
