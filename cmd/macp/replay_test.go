package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"macp/internal/agent"
	"macp/internal/config"
	"macp/internal/consensus"
	"macp/internal/debate"
	"macp/internal/session"
	"macp/internal/store"
	"macp/internal/types"
)

// An archived round must re-score to exactly its recorded value from the
// snapshot stored with it, even after reputation deltas have been applied
// to the live store.
func TestCollectRoundsRescoresArchivedRoundsExactly(t *testing.T) {
	ctx := context.Background()

	db, err := store.New(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()
	if err := db.AddEvidence(ctx, "bench-1", "p95 latency baseline", 0.9); err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}

	cfg := config.Default()
	cfg.MaxRounds = 2
	cfg.ConsensusThreshold = 0.99
	cfg.PerTurnTimeoutMS = 200
	cfg.QuestioningWindowMS = 0
	cfg.SummarizeOnConsensus = false

	participants := []types.AgentHandle{
		agent.NewHandle("a", "", "",
			agent.NewScriptedBackend("a", "cache the results behind a short ttl", "measure the cache hit rate first"), nil),
		agent.NewHandle("b", "", "",
			agent.NewScriptedBackend("b", "measure latency before caching, see [mem:bench-1]", "agreed, measure then cache results"), nil),
	}
	scorer, err := consensus.New(config.ScorerLexical, nil)
	if err != nil {
		t.Fatalf("consensus.New: %v", err)
	}
	manager := debate.NewManager(participants, cfg.SpeakingOrderMode,
		cfg.PerTurnTimeout(), cfg.QuestioningWindow(), nil, zap.NewNop())
	ctrl, err := session.New(cfg, "should we add a cache?", participants, manager, scorer, db, db, zap.NewNop())
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	out, err := ctrl.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := db.ArchiveSession(ctx, store.SessionRecord{
		SessionID:    out.SessionID,
		Question:     out.Question,
		State:        out.State.String(),
		FinalScore:   out.FinalScore,
		Rounds:       len(out.Rounds),
		LeadingAgent: out.Leading.SpeakerID,
	}, ctrl.Transcript().Events()); err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}

	// apply the staged deltas so live reputations drift away from the
	// per-round snapshots the transcript recorded
	applied, err := db.ApplyDeltas(ctx, out.SessionID)
	if err != nil {
		t.Fatalf("ApplyDeltas: %v", err)
	}
	if applied == 0 {
		t.Fatal("expected at least one applied delta")
	}
	liveRep, err := db.Get(ctx, out.Leading.SpeakerID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	events, err := db.LoadEvents(ctx, out.SessionID)
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	rounds := collectRounds(events)
	if len(rounds) != len(out.Rounds) {
		t.Fatalf("reconstructed %d rounds, session ran %d", len(rounds), len(out.Rounds))
	}

	for i, r := range rounds {
		if r.Index != i+1 {
			t.Fatalf("round index = %d, want %d", r.Index, i+1)
		}
		if rep, ok := r.Reputations[out.Leading.SpeakerID]; !ok {
			t.Fatalf("round %d snapshot missing %s", r.Index, out.Leading.SpeakerID)
		} else if rep == liveRep {
			t.Fatalf("round %d snapshot equals post-delta reputation %v; deltas should have moved it", r.Index, liveRep)
		}

		got, err := scorer.Score(ctx, consensus.Input{
			Statements:  r.Statements,
			Reputations: r.Reputations,
			Evidence:    r.Evidence,
		})
		if err != nil {
			t.Fatalf("Score round %d: %v", r.Index, err)
		}
		if got.Score != r.Recorded.Score {
			t.Errorf("round %d re-score = %.12f, recorded %.12f", r.Index, got.Score, r.Recorded.Score)
		}
		if got.Score != out.Rounds[i].Score {
			t.Errorf("round %d re-score = %.12f, live run scored %.12f", r.Index, got.Score, out.Rounds[i].Score)
		}
		if got.LeadingID != r.Recorded.LeadingID {
			t.Errorf("round %d re-scored leader = %s, recorded %s", r.Index, got.LeadingID, r.Recorded.LeadingID)
		}
	}

	// round 1 cited bench-1; the verified strength rides along in the event
	if res, ok := rounds[0].Evidence["bench-1"]; !ok || res.Strength != 0.9 {
		t.Errorf("round 1 evidence = %+v, want bench-1 with strength 0.9", rounds[0].Evidence)
	}
}
