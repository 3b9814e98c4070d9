package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"macp/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetReturnsBaselineForUnknownAgent(t *testing.T) {
	s := newTestStore(t)

	score, err := s.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestProposedDeltasInvisibleUntilApplied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.ProposeDelta(types.ReputationDelta{
		AgentID: "a", Delta: -0.10, Reason: "silent round", SessionID: "s-1",
	})

	score, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "staged delta must not affect reads")

	n, err := s.ApplyDeltas(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	score, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.90, score, 1e-9)
}

func TestApplyDeltasIsScopedToSessionAndIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.ProposeDelta(types.ReputationDelta{AgentID: "a", Delta: 0.05, SessionID: "s-1"})
	s.ProposeDelta(types.ReputationDelta{AgentID: "a", Delta: 0.05, SessionID: "s-2"})

	n, err := s.ApplyDeltas(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	score, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 1.05, score, 1e-9)

	// Re-applying the same session is a no-op.
	n, err = s.ApplyDeltas(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	score, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 1.05, score, 1e-9)
}

func TestApplyDeltasFloorsScoreAtZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		s.ProposeDelta(types.ReputationDelta{AgentID: "a", Delta: -0.10, SessionID: "s-1"})
	}

	_, err := s.ApplyDeltas(ctx, "s-1")
	require.NoError(t, err)

	score, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestVerifyUnknownMemoryIsNotAnError(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Verify(context.Background(), "mem-unknown")
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.Equal(t, 0.0, res.Strength)
}

func TestVerifyReturnsStoredStrength(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddEvidence(ctx, "bench-1", "latency numbers", 0.9))
	require.NoError(t, s.AddEvidence(ctx, "wild", "out of range", 1.7))

	res, err := s.Verify(ctx, "bench-1")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.InDelta(t, 0.9, res.Strength, 1e-9)

	res, err = s.Verify(ctx, "wild")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Strength, "strength is clamped on write")
}

func TestArchiveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []types.Event{
		{Type: types.EventSessionCreated, Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), Round: 0,
			Payload: map[string]any{"question": "should we ship"}},
		{Type: types.EventRoundScored, Timestamp: time.Date(2026, 3, 14, 9, 0, 5, 0, time.UTC), Round: 1,
			Payload: map[string]any{"score": 0.85, "leading": "a"}},
	}
	rec := SessionRecord{
		SessionID:    "s-1",
		Question:     "should we ship",
		State:        "consensus_reached",
		FinalScore:   0.85,
		Rounds:       1,
		LeadingAgent: "a",
	}
	require.NoError(t, s.ArchiveSession(ctx, rec, events))

	got, err := s.LoadEvents(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.EventSessionCreated, got[0].Type)
	assert.Equal(t, 1, got[1].Round)
	assert.Equal(t, 0.85, got[1].Payload["score"])

	list, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s-1", list[0].SessionID)
	assert.Equal(t, "consensus_reached", list[0].State)
	assert.Equal(t, "a", list[0].LeadingAgent)
}

func TestArchiveSessionReplacesPreviousCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := SessionRecord{SessionID: "s-1", Question: "q", State: "aborted", Rounds: 1}
	first := []types.Event{{Type: types.EventSessionCreated}, {Type: types.EventStateTransition}}
	require.NoError(t, s.ArchiveSession(ctx, rec, first))

	rec.State = "timeout_terminated"
	second := []types.Event{{Type: types.EventSessionCreated}}
	require.NoError(t, s.ArchiveSession(ctx, rec, second))

	got, err := s.LoadEvents(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	list, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "timeout_terminated", list[0].State)
}

func TestLoadEventsUnknownSessionFails(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadEvents(context.Background(), "nope")
	assert.Error(t, err)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macp.db")
	ctx := context.Background()

	s, err := New(path, zap.NewNop())
	require.NoError(t, err)
	s.ProposeDelta(types.ReputationDelta{AgentID: "a", Delta: 0.05, SessionID: "s-1"})
	_, err = s.ApplyDeltas(ctx, "s-1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	score, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 1.05, score, 1e-9)
}
