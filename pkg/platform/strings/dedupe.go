// Package strings provides small string-list helpers for parsing
// delimited configuration values such as broker lists.
package strings

import (
	"strings"
)

// SplitList splits a separator-delimited value into its elements,
// trimming whitespace and dropping empties and duplicates. First
// occurrence order is preserved.
//
// Example:
//
//	SplitList("kafka-1:9092, kafka-2:9092,,kafka-1:9092", ",")
//	// Returns: []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(value, sep string) []string {
	parts := strings.Split(value, sep)
	seen := make(map[string]struct{}, len(parts))
	result := make([]string, 0, len(parts))

	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
