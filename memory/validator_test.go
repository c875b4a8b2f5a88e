package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsMemoryValidRejectsLowConfidence(t *testing.T) {
	now := time.Now()
	entry := Entry{Confidence: 0.8, TTLHours: 24, Timestamp: now}
	require.False(t, IsMemoryValid(entry, "what color", now))
}

func TestIsMemoryValidRejectsExpiredTTL(t *testing.T) {
	now := time.Now()
	entry := Entry{Confidence: 0.95, TTLHours: 6, Source: "web", Timestamp: now.Add(-7 * time.Hour)}
	require.False(t, IsMemoryValid(entry, "who is the CEO", now))
}

func TestIsMemoryValidFreshnessKeywordBypass(t *testing.T) {
	// S1: web entry 2h old, 6h TTL, but query contains "current" -> rejected
	// because web entries under a freshness keyword must be <=1h old.
	now := time.Now()
	entry := Entry{
		Confidence: 0.95,
		TTLHours:   6,
		Source:     "web",
		Timestamp:  now.Add(-2 * time.Hour),
	}
	require.False(t, IsMemoryValid(entry, "Who is the current CEO of Example Corp?", now))
}

func TestIsMemoryValidWebFreshnessOverride(t *testing.T) {
	now := time.Now()
	entry := Entry{Confidence: 0.95, TTLHours: 168, Source: "web", Timestamp: now.Add(-25 * time.Hour)}
	require.False(t, IsMemoryValid(entry, "tell me about Example Corp", now))
}

func TestIsMemoryValidAccepts(t *testing.T) {
	now := time.Now()
	entry := Entry{Confidence: 0.95, TTLHours: 24, Source: "documents", Timestamp: now.Add(-1 * time.Hour)}
	require.True(t, IsMemoryValid(entry, "tell me about Example Corp", now))
}

func TestShouldIndexToMemory(t *testing.T) {
	require.True(t, ShouldIndexToMemory(0.95, "documents", "This is a long enough valid answer.", true))
	require.False(t, ShouldIndexToMemory(0.95, "documents", "short", true))
	require.False(t, ShouldIndexToMemory(0.95, "documents", "We could not find this in the documents.", true))
	require.False(t, ShouldIndexToMemory(0.92, "web", "This is a long enough valid web answer.", true))
	require.True(t, ShouldIndexToMemory(0.96, "web", "This is a long enough valid web answer.", true))
	require.False(t, ShouldIndexToMemory(0.95, "documents", "This is a long enough valid answer.", false))
}

func TestCalculateTTLHours(t *testing.T) {
	require.Equal(t, 6.0, CalculateTTLHours("web_search"))
	require.Equal(t, 168.0, CalculateTTLHours("documents"))
	require.Equal(t, 24.0, CalculateTTLHours("session"))
}

func TestAgeHoursZeroTimestampIsInfinite(t *testing.T) {
	require.Equal(t, posInf, AgeHours(time.Time{}, time.Now()))
}
