package status

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacrawler/internal/progress"
)

func TestRunStatusApply(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []progress.Event{
		{RunID: "r1", TS: start, Stage: progress.StageRunStart},
		{RunID: "r1", TS: start.Add(time.Second), Stage: progress.StageTaskStart, URL: "https://a.test", Active: 1},
		{RunID: "r1", TS: start.Add(2 * time.Second), Stage: progress.StageFetchDone, URL: "https://a.test", Bytes: 10, Enqueued: 2, StatusClass: progress.Status2xx},
		{RunID: "r1", TS: start.Add(3 * time.Second), Stage: progress.StageStageError, PipelineStage: "jsonl"},
		{RunID: "other", TS: start.Add(3 * time.Second), Stage: progress.StageFetchDone, Bytes: 99},
		{RunID: "r1", TS: start.Add(4 * time.Second), Stage: progress.StageFetchError, URL: "https://b.test"},
		{RunID: "r1", TS: start.Add(5 * time.Second), Stage: progress.StageRunDone, Dur: 5 * time.Second, Note: progress.OutcomeCompleted},
	}

	var st RunStatus
	for _, evt := range events {
		st.Apply(evt)
	}

	require.Equal(t, "r1", st.RunID)
	require.Equal(t, StateCompleted, st.State)
	require.Equal(t, start, st.StartedAt)
	require.Equal(t, start.Add(5*time.Second), st.FinishedAt)
	require.Equal(t, 1, st.Tasks)
	require.Equal(t, 1, st.Fetched)
	require.Equal(t, 1, st.FetchErrors)
	require.Equal(t, 1, st.StageErrors)
	require.Equal(t, 2, st.Enqueued)
	require.Equal(t, int64(10), st.Bytes)
	require.Equal(t, 5*time.Second, st.Duration)
}

func TestRunStatusApplyCanceled(t *testing.T) {
	t.Parallel()

	var st RunStatus
	st.Apply(progress.Event{RunID: "r2", TS: time.Now(), Stage: progress.StageRunStart})
	st.Apply(progress.Event{RunID: "r2", TS: time.Now(), Stage: progress.StageTaskCanceled, URL: "https://a.test"})
	st.Apply(progress.Event{RunID: "r2", TS: time.Now(), Stage: progress.StageRunDone, Note: progress.OutcomeCanceled})

	require.Equal(t, StateCanceled, st.State)
	require.Equal(t, 1, st.Canceled)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.Error(t, store.Put(ctx, RunStatus{}))

	require.NoError(t, store.Put(ctx, RunStatus{RunID: "r1", State: StateRunning}))
	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, StateRunning, got.State)
}
