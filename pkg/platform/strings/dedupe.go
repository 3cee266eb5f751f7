// Package strings holds list helpers shared by config parsing.
package strings

import (
	"strings"
)

// SplitList splits a separated value such as "b1:9092, b2:9092,b1:9092"
// into trimmed, unique, non-empty parts. Order is preserved.
func SplitList(value, sep string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(value, sep))
}

// DedupeAndTrim removes duplicates and blank entries, trimming each element.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
