package finding

import "strings"

// Severity is one of the four canonical levels.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// Severities lists canonical levels from most to least severe.
var Severities = []Severity{SeverityError, SeverityWarning, SeverityInfo, SeverityHint}

// severitySynonyms maps lowercase tool tokens to canonical levels.
var severitySynonyms = map[string]Severity{
	"error":      SeverityError,
	"warning":    SeverityWarning,
	"info":       SeverityInfo,
	"hint":       SeverityHint,
	"suggestion": SeverityHint,
	"high":       SeverityError,
	"medium":     SeverityWarning,
	"low":        SeverityInfo,
	"trivial":    SeverityHint,
}

// NormalizeSeverity maps any tool-reported token to a canonical level.
// Matching is case-insensitive; unknown tokens map to info.
func NormalizeSeverity(token string) Severity {
	if s, ok := severitySynonyms[strings.ToLower(strings.TrimSpace(token))]; ok {
		return s
	}
	return SeverityInfo
}

// Rank orders severities: error=0 through hint=3; unknown values rank as info.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	case SeverityHint:
		return 3
	default:
		return 2
	}
}
