package rules

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinDescriptionLen = 10
	MaxDescriptionLen = 2000
)

// NormalizeDescription trims raw and checks its length in characters.
func NormalizeDescription(raw string) (string, error) {
	desc := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(desc)
	switch {
	case n == 0:
		return "", E(KindValidation, "description", "description is required")
	case n < MinDescriptionLen:
		return "", E(KindValidation, "description", "description must be at least %d characters, got %d", MinDescriptionLen, n)
	case n > MaxDescriptionLen:
		return "", E(KindValidation, "description", "description must be at most %d characters, got %d", MaxDescriptionLen, n)
	}
	return desc, nil
}

// DefaultName derives a display name from the creation time.
func DefaultName(now time.Time) string {
	return "rule_" + now.UTC().Format("20060102150405")
}

// NormalizeName trims raw and falls back to DefaultName when blank.
func NormalizeName(raw *string, now time.Time) string {
	if raw != nil {
		if name := strings.TrimSpace(*raw); name != "" {
			return name
		}
	}
	return DefaultName(now)
}
