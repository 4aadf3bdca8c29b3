package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceString(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{"string passes through", "1.2.3", "1.2.3", true},
		{"integer number", float64(2), "2", true},
		{"fractional number", 0.9, "0.9", true},
		{"boolean", true, "true", true},
		{"nil rejected", nil, "", false},
		{"object rejected", map[string]any{"a": 1}, "", false},
		{"array rejected", []any{"a"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CoerceString(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
