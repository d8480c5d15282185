package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLoc = time.FixedZone("local", 7*3600)

// Tuesday morning in the fixed test zone.
var testRef = time.Date(2026, 3, 10, 10, 0, 0, 0, testLoc)

func fallbackInput(subject, body string) Input {
	return Input{
		Sender:     "alice@example.com",
		Subject:    subject,
		Body:       body,
		ReceivedAt: testRef,
	}
}

func TestFallbackTeamSyncInTenMinutes(t *testing.T) {
	f := NewFallback(testLoc)

	res := f.Classify(fallbackInput("Team sync in 10 min", ""))

	assert.Equal(t, PriorityUrgent, res.Priority)
	assert.Equal(t, "Team sync", res.Title)
	require.NotNil(t, res.DueAt)
	assert.Equal(t, testRef.Add(10*time.Minute), res.DueAt.In(testLoc))
}

func TestFallbackKeywordPrecedence(t *testing.T) {
	f := NewFallback(testLoc)

	tests := []struct {
		name string
		body string
		want Priority
	}{
		{"urgent keyword wins", "URGENT: server is down, please review", PriorityUrgent},
		{"casual outranks work", "Lunch after the project review?", PriorityNormal},
		{"work keyword", "Please review the quarterly report", PriorityImportant},
		{"no keyword", "Some photos from the trip", PriorityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Classify(fallbackInput("", tt.body))
			assert.Equal(t, tt.want, res.Priority)
		})
	}
}

func TestFallbackRelativeHours(t *testing.T) {
	f := NewFallback(testLoc)

	res := f.Classify(fallbackInput("Demo in 2 hours", ""))

	require.NotNil(t, res.DueAt)
	assert.Equal(t, testRef.Add(2*time.Hour), res.DueAt.In(testLoc))
	// Two hours out is not imminent; "demo" is no keyword either.
	assert.Equal(t, PriorityNormal, res.Priority)
}

func TestFallbackTodayDefaultsToEndOfDay(t *testing.T) {
	f := NewFallback(testLoc)

	res := f.Classify(fallbackInput("Invoice due today", ""))

	require.NotNil(t, res.DueAt)
	want := time.Date(2026, 3, 10, 17, 0, 0, 0, testLoc)
	assert.Equal(t, want, res.DueAt.In(testLoc))
}

func TestFallbackTomorrowDefaultsToMorning(t *testing.T) {
	f := NewFallback(testLoc)

	res := f.Classify(fallbackInput("Submit the proposal tomorrow", ""))

	require.NotNil(t, res.DueAt)
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, testLoc)
	assert.Equal(t, want, res.DueAt.In(testLoc))
	assert.Equal(t, PriorityImportant, res.Priority)
}

func TestFallbackWeekdayResolvesForward(t *testing.T) {
	f := NewFallback(testLoc)

	// Reference date is a Tuesday; Friday is three days out.
	res := f.Classify(fallbackInput("Deadline on Friday", ""))

	require.NotNil(t, res.DueAt)
	want := time.Date(2026, 3, 13, 9, 0, 0, 0, testLoc)
	assert.Equal(t, want, res.DueAt.In(testLoc))
}

func TestFallbackClockTimeRefinesDay(t *testing.T) {
	f := NewFallback(testLoc)

	res := f.Classify(fallbackInput("Client call tomorrow at 3:30 pm", ""))

	require.NotNil(t, res.DueAt)
	want := time.Date(2026, 3, 11, 15, 30, 0, 0, testLoc)
	assert.Equal(t, want, res.DueAt.In(testLoc))
}

func TestFallbackTitleStripsReplyPrefixes(t *testing.T) {
	f := NewFallback(testLoc)

	res := f.Classify(fallbackInput("Re: Fwd: Budget approval", "Please sign off."))

	assert.Equal(t, "Budget approval", res.Title)
}

func TestFallbackEmptySubjectUsesBodyClause(t *testing.T) {
	f := NewFallback(testLoc)

	res := f.Classify(fallbackInput("", "Send the signed contract back"))

	assert.Equal(t, "Send the signed contract back", res.Title)
}

func TestFallbackClassifyMultiTwoDeadlines(t *testing.T) {
	f := NewFallback(testLoc)

	results := f.ClassifyMulti(fallbackInput(
		"Report schedule",
		"Submit draft by Friday, final version next Monday",
	))

	require.Len(t, results, 2)
	require.NotNil(t, results[0].DueAt)
	require.NotNil(t, results[1].DueAt)
	assert.True(t, results[0].DueAt.Before(*results[1].DueAt))
}

func TestFallbackClassifyMultiSingleDeadlineDegrades(t *testing.T) {
	f := NewFallback(testLoc)

	results := f.ClassifyMulti(fallbackInput("Weekly sync", "Standup tomorrow at 9 am"))

	require.Len(t, results, 1)
}

func TestFallbackNoTimePhrase(t *testing.T) {
	f := NewFallback(testLoc)

	res := f.Classify(fallbackInput("Quick question", "Do you have the slides?"))

	assert.Nil(t, res.DueAt)
	assert.Equal(t, DefaultEstimateMinutes, res.EstimatedMinutes)
}
