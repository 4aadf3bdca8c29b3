package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTool_ConfigurationKey(t *testing.T) {
	assert.Equal(t, "{}", Tool{}.ConfigurationKey(), "nil configuration normalizes to empty object")

	spaced := Tool{Configuration: json.RawMessage(`{ "a": 1 }`)}
	compact := Tool{Configuration: json.RawMessage(`{"a":1}`)}
	assert.Equal(t, compact.ConfigurationKey(), spaced.ConfigurationKey(), "whitespace does not change the key")
}

func TestTool_NaturalKey(t *testing.T) {
	a := Tool{Name: "scanner", Version: "1.0", Configuration: json.RawMessage(`{}`)}
	b := Tool{Name: "scanner", Version: "1.0"}
	c := Tool{Name: "scanner", Version: "1.1"}

	assert.Equal(t, a.NaturalKey(), b.NaturalKey())
	assert.NotEqual(t, a.NaturalKey(), c.NaturalKey())
}
