package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdomain "taskmind-backend/internal/account/domain"
	"taskmind-backend/internal/task/domain"
	"taskmind-backend/pkg/ai"
)

func rawItem(subject, body string) *accountdomain.RawItem {
	return &accountdomain.RawItem{
		ExternalID: "msg-1",
		Sender:     "alice@example.com",
		SenderName: "Alice",
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func classified(title string) []ai.Result {
	return []ai.Result{{
		Priority:         ai.PriorityNormal,
		Title:            title,
		EstimatedMinutes: 15,
	}}
}

func TestDeriveOneDraftPerResult(t *testing.T) {
	d := NewDeriver()

	drafts := d.Derive(rawItem("Budget approval", "Please sign off"), classified("Approve budget"))

	require.Len(t, drafts, 1)
	assert.Equal(t, "Approve budget", drafts[0].Title)
	assert.Equal(t, domain.PriorityNormal, drafts[0].Priority)
	assert.Equal(t, "msg-1", drafts[0].SourceItemID)
	assert.Empty(t, drafts[0].GroupID)
}

func TestDeriveSkipPatterns(t *testing.T) {
	d := NewDeriver()

	tests := []struct {
		name    string
		subject string
		body    string
	}{
		{"verification code", "Your verification code", "123456 expires in 10 minutes"},
		{"otp", "Account access", "Your one-time password is 998877"},
		{"login alert", "Security alert", "New sign-in to your account from Chrome"},
		{"password reset", "Password reset requested", "Click here to continue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafts := d.Derive(rawItem(tt.subject, tt.body), classified("Check email"))
			assert.Empty(t, drafts)
		})
	}
}

func TestDeriveSkipPriorityDropsResult(t *testing.T) {
	d := NewDeriver()

	results := []ai.Result{
		{Priority: ai.PrioritySkip, Title: "Newsletter digest"},
		{Priority: ai.PriorityImportant, Title: "Review contract", EstimatedMinutes: 30},
	}
	drafts := d.Derive(rawItem("Mixed content", "body"), results)

	require.Len(t, drafts, 1)
	assert.Equal(t, "Review contract", drafts[0].Title)
}

func TestDeriveAllSkipYieldsNothing(t *testing.T) {
	d := NewDeriver()

	drafts := d.Derive(rawItem("FYI", "body"), []ai.Result{{Priority: ai.PrioritySkip}})

	assert.Empty(t, drafts)
}

func TestDeriveGenericTitleExtractsFromSubject(t *testing.T) {
	d := NewDeriver()

	drafts := d.Derive(rawItem("Re: Contract renewal", "Please review the attached terms"), classified("Reply email"))

	require.Len(t, drafts, 1)
	assert.Equal(t, "Contract renewal", drafts[0].Title)
}

func TestDeriveGenericTitleFallsBackToBodyLine(t *testing.T) {
	d := NewDeriver()

	body := "Hi Bob,\nSend the signed agreement before the end of the week\nThanks"
	drafts := d.Derive(rawItem("", body), classified("follow up"))

	require.Len(t, drafts, 1)
	assert.Equal(t, "Send the signed agreement before the end of the week", drafts[0].Title)
}

func TestDeriveMultiResultsShareGroup(t *testing.T) {
	d := NewDeriver()

	due1 := time.Now().Add(24 * time.Hour)
	due2 := time.Now().Add(96 * time.Hour)
	results := []ai.Result{
		{Priority: ai.PriorityImportant, Title: "Submit draft", DueAt: &due1, EstimatedMinutes: 60},
		{Priority: ai.PriorityImportant, Title: "Submit final version", DueAt: &due2, EstimatedMinutes: 60},
	}
	drafts := d.Derive(rawItem("Report schedule", "Submit draft by Friday, final version next Monday"), results)

	require.Len(t, drafts, 2)
	require.NotEmpty(t, drafts[0].GroupID)
	assert.Equal(t, drafts[0].GroupID, drafts[1].GroupID)
	assert.Equal(t, 0, drafts[0].GroupIndex)
	assert.Equal(t, 1, drafts[1].GroupIndex)
	assert.Equal(t, 2, drafts[0].GroupSize)
}
