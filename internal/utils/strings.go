package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed, non-empty,
// de-duplicated values in first-seen order. Returns nil when nothing remains.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	seen := make(map[string]bool)
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		result = append(result, trimmed)
	}

	return result
}
