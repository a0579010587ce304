package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

// ContainsAny reports whether s contains at least one of subs.
func ContainsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// IsPlaceholder reports whether a configured secret is still a template value.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.Contains(s, "your_")
}
