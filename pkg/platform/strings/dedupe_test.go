package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompact(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil", input: nil, expected: nil},
		{name: "empty", input: []string{}, expected: []string{}},
		{name: "trims", input: []string{" kafka-1:9092 ", "kafka-2:9092"}, expected: []string{"kafka-1:9092", "kafka-2:9092"}},
		{name: "keeps first occurrence", input: []string{"b", "a", "b", "a"}, expected: []string{"b", "a"}},
		{name: "drops blanks", input: []string{"", "  ", "a"}, expected: []string{"a"}},
		{name: "only blanks", input: []string{" ", ""}, expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compact(tt.input))
		})
	}
}
