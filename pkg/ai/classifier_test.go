package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedRemote struct {
	results [][]Result
	errs    []error
	calls   int
}

func (r *scriptedRemote) ClassifyMulti(_ context.Context, _ Input) ([]Result, error) {
	i := r.calls
	r.calls++
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(r.results) {
		return r.results[i], nil
	}
	return nil, errors.New("script exhausted")
}

type transientErr struct{ msg string }

func (e transientErr) Error() string   { return e.msg }
func (e transientErr) Retryable() bool { return true }

func newTestService(remote RemoteClassifier) (*Service, *[]time.Duration) {
	s := NewService(remote, testLoc, zap.NewNop())
	s.now = func() time.Time { return testRef }
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestClassifyUsesRemoteResult(t *testing.T) {
	due := testRef.Add(3 * time.Hour)
	remote := &scriptedRemote{results: [][]Result{{{
		Priority:         PriorityImportant,
		Title:            "Prepare slides",
		EstimatedMinutes: 45,
		DueAt:            &due,
	}}}}
	s, slept := newTestService(remote)

	res := s.Classify(context.Background(), fallbackInput("Slides", "Deck for Thursday"))

	assert.Equal(t, PriorityImportant, res.Priority)
	assert.Equal(t, "Prepare slides", res.Title)
	assert.Equal(t, 45, res.EstimatedMinutes)
	assert.Equal(t, 1, remote.calls)
	assert.Empty(t, *slept)
}

func TestClassifyRetriesWithExponentialBackoff(t *testing.T) {
	due := testRef.Add(time.Hour)
	remote := &scriptedRemote{
		errs: []error{
			transientErr{"rate limited"},
			transientErr{"overloaded"},
			nil,
		},
		results: [][]Result{nil, nil, {{Priority: PriorityNormal, Title: "ok", DueAt: &due, EstimatedMinutes: 10}}},
	}
	s, slept := newTestService(remote)

	res := s.Classify(context.Background(), fallbackInput("x", "y"))

	assert.Equal(t, "ok", res.Title)
	assert.Equal(t, 3, remote.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *slept)
}

func TestClassifyFallsBackAfterExhaustion(t *testing.T) {
	remote := &scriptedRemote{
		errs: []error{
			transientErr{"quota"},
			transientErr{"quota"},
			transientErr{"quota"},
		},
	}
	s, _ := newTestService(remote)

	res := s.Classify(context.Background(), fallbackInput("Team sync in 10 min", ""))

	assert.Equal(t, 3, remote.calls)
	// Deterministic fallback still classifies within the taxonomy.
	assert.Equal(t, PriorityUrgent, res.Priority)
	assert.Equal(t, "Team sync", res.Title)
	require.NotNil(t, res.DueAt)
}

func TestClassifyNonRetryableFailsFast(t *testing.T) {
	remote := &scriptedRemote{errs: []error{errors.New("invalid request")}}
	s, slept := newTestService(remote)

	res := s.Classify(context.Background(), fallbackInput("Quick question", "Do you have the slides?"))

	assert.Equal(t, 1, remote.calls)
	assert.Empty(t, *slept)
	assert.True(t, ValidPriority(res.Priority))
}

func TestClassifyWithoutRemoteUsesFallback(t *testing.T) {
	s, _ := newTestService(nil)

	res := s.Classify(context.Background(), fallbackInput("Deadline on Friday", ""))

	require.NotNil(t, res.DueAt)
	assert.True(t, ValidPriority(res.Priority))
}

func TestNormalizeCoercesTaxonomyAndEstimate(t *testing.T) {
	due := testRef.Add(time.Hour)
	remote := &scriptedRemote{results: [][]Result{{
		{Priority: "mega-urgent", Title: "a", EstimatedMinutes: 2, DueAt: &due},
		{Priority: PriorityImportant, Title: "b", EstimatedMinutes: 10000, DueAt: &due},
		{Priority: PriorityNormal, Title: "c", EstimatedMinutes: 0, DueAt: &due},
	}}}
	s, _ := newTestService(remote)

	results := s.ClassifyMulti(context.Background(), fallbackInput("x", "y"))

	require.Len(t, results, 3)
	assert.Equal(t, PriorityNormal, results[0].Priority)
	assert.Equal(t, MinEstimateMinutes, results[0].EstimatedMinutes)
	assert.Equal(t, MaxEstimateMinutes, results[1].EstimatedMinutes)
	assert.Equal(t, DefaultEstimateMinutes, results[2].EstimatedMinutes)
}

func TestNormalizeDiscardsInvalidDueForFallbackParse(t *testing.T) {
	bogus := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	remote := &scriptedRemote{results: [][]Result{{{
		Priority: PriorityNormal, Title: "Sync", EstimatedMinutes: 15, DueAt: &bogus,
	}}}}
	s, _ := newTestService(remote)

	res := s.Classify(context.Background(), fallbackInput("Sync tomorrow", ""))

	require.NotNil(t, res.DueAt)
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, testLoc)
	assert.Equal(t, want, res.DueAt.In(testLoc))
}

func TestPriorityContactForcesUrgent(t *testing.T) {
	remote := &scriptedRemote{results: [][]Result{{{
		Priority: PriorityNormal, Title: "Photos", EstimatedMinutes: 15,
	}}}}
	s, _ := newTestService(remote)

	in := fallbackInput("Trip photos", "From the weekend")
	in.Sender = "Boss <boss@example.com>"
	in.PrioritySenders = []string{"boss@example.com"}

	res := s.Classify(context.Background(), in)

	assert.Equal(t, PriorityUrgent, res.Priority)
}
