package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "blank", input: "  ", expected: nil},
		{name: "single broker", input: "kafka:9092", expected: []string{"kafka:9092"}},
		{
			name:     "trims and drops blanks",
			input:    " b1:9092 ,, b2:9092 ,",
			expected: []string{"b1:9092", "b2:9092"},
		},
		{
			name:     "duplicates keep first position",
			input:    "b2:9092,b1:9092,b2:9092",
			expected: []string{"b2:9092", "b1:9092"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input, ","))
		})
	}
}

func TestDedupeAndTrim(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Equal(t, []string{}, DedupeAndTrim([]string{}))
	assert.Equal(t, []string{}, DedupeAndTrim([]string{" ", ""}))
	assert.Equal(t, []string{"a", "b"}, DedupeAndTrim([]string{" a", "b ", "a"}))
}
