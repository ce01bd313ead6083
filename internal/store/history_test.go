package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swevalidator/internal/validator"
)

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := OpenHistory(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSummary(runID string) *validator.Summary {
	return validator.Aggregate(runID, []validator.Outcome{
		{Source: "a.json", InstanceID: "a__a-1"},
		{Source: "b.json", InstanceID: "b__b-2", Err: &validator.ValidationError{
			Type:       validator.ErrorTestFailure,
			InstanceID: "b__b-2",
			Message:    "Test validation failed: FAIL_TO_PASS tests still failing (1): t1",
			RunID:      runID,
		}},
	})
}

func TestHistory_RoundTrip(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()

	started := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	require.NoError(t, s.RecordSummary(ctx, sampleSummary("validator_2inst_20250102_030405"), started, finished))

	runs, err := s.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "validator_2inst_20250102_030405", run.RunID)
	assert.True(t, run.StartedAt.Equal(started))
	assert.Equal(t, 90*time.Second, run.Duration())
	assert.Equal(t, 2, run.Instances)
	assert.Equal(t, 1, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.Empty(t, run.Outcomes)

	outcomes, err := s.RunOutcomes(ctx, run.RunID)
	require.NoError(t, err)
	want := []OutcomeRecord{
		{RunID: run.RunID, Source: "a.json", InstanceID: "a__a-1", Success: true},
		{
			RunID:      run.RunID,
			Source:     "b.json",
			InstanceID: "b__b-2",
			ErrorType:  "test_failure",
			Message:    "Test validation failed: FAIL_TO_PASS tests still failing (1): t1",
		},
	}
	if diff := cmp.Diff(want, outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_RecentRunsOrderAndLimit(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: id, StartedAt: at, FinishedAt: at, Instances: 1, Passed: 1}))
	}

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)
}

func TestHistory_Errors(t *testing.T) {
	s := openTestHistory(t)
	ctx := context.Background()

	assert.Error(t, s.RecordRun(ctx, RunRecord{}), "run id is required")

	run := RunRecord{RunID: "dup", StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, s.RecordRun(ctx, run))
	assert.Error(t, s.RecordRun(ctx, run), "run ids are unique")

	outcomes, err := s.RunOutcomes(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestHistory_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := OpenHistory(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordSummary(ctx, sampleSummary("persisted"), time.Now(), time.Now()))
	require.NoError(t, s.Close())

	s, err = OpenHistory(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	runs, err := s.RecentRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].RunID)
}
