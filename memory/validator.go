package memory

import (
	"strings"
	"time"
)

// FreshnessKeywords are query substrings that force a tighter Tier-2
// staleness bound (1h) regardless of the entry's nominal TTL.
var FreshnessKeywords = []string{"current", "latest", "now", "today", "updated", "recent", "new"}

var errorIndicators = []string{"error", "failed", "not found", "could not", "unable to"}

// AgeHours returns the age of timestamp in hours, as of now. Callers that
// cannot parse a stored timestamp should treat the entry as infinitely old
// (see calculate_ttl_hours callers in memory_validator.py) so it is always
// rejected rather than spuriously accepted.
func AgeHours(timestamp time.Time, now time.Time) float64 {
	if timestamp.IsZero() {
		return posInf
	}
	return now.Sub(timestamp).Hours()
}

const posInf = 1e18

// IsMemoryValid applies the Tier-2 validation cascade for entry against
// query, evaluated at now. All of the conditions must hold for the entry to
// be eligible for reuse.
func IsMemoryValid(entry Entry, query string, now time.Time) bool {
	if entry.Confidence < 0.9 {
		return false
	}
	age := AgeHours(entry.Timestamp, now)
	if age > entry.TTLHours {
		return false
	}
	if isWebSource(entry.Source) && age > 24 {
		return false
	}
	if containsFreshnessKeyword(query) && age > 1 {
		return false
	}
	return true
}

// ShouldIndexToMemory decides whether a successful answer should be
// promoted into Tier 2.
func ShouldIndexToMemory(confidence float64, source, answer string, goalAchieved bool) bool {
	if !goalAchieved {
		return false
	}
	if confidence < 0.9 {
		return false
	}
	if len(answer) < 20 {
		return false
	}
	lower := strings.ToLower(answer)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return false
		}
	}
	if isWebSource(source) && confidence < 0.95 {
		return false
	}
	return true
}

// CalculateTTLHours assigns the Tier-2 TTL for a newly indexed entry based
// on its source class.
func CalculateTTLHours(source string) float64 {
	switch {
	case isWebSource(source):
		return 6
	case isDocumentSource(source):
		return 168
	default:
		return 24
	}
}

func isWebSource(source string) bool {
	s := strings.ToLower(source)
	return strings.Contains(s, "web")
}

func isDocumentSource(source string) bool {
	s := strings.ToLower(source)
	return strings.Contains(s, "document")
}

func containsFreshnessKeyword(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range FreshnessKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
