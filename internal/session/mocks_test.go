package session

import (
	"context"
	"sync"

	"macp/internal/consensus"
	"macp/internal/types"
)

// mockHandle implements types.AgentHandle with pluggable behavior.
type mockHandle struct {
	id          string
	SolicitFunc func(ctx context.Context, req types.SolicitRequest) types.SolicitResult
}

func (m *mockHandle) ID() string   { return m.id }
func (m *mockHandle) Role() string { return "" }

func (m *mockHandle) Solicit(ctx context.Context, req types.SolicitRequest) types.SolicitResult {
	if m.SolicitFunc != nil {
		return m.SolicitFunc(ctx, req)
	}
	return types.SolicitResult{Text: m.id + " position", Outcome: types.OutcomeOK}
}

func speaks(id string) *mockHandle { return &mockHandle{id: id} }

func erroring(id string) *mockHandle {
	return &mockHandle{id: id, SolicitFunc: func(ctx context.Context, req types.SolicitRequest) types.SolicitResult {
		return types.SolicitResult{Outcome: types.OutcomeError, Reason: "backend exploded"}
	}}
}

func muted(id string) *mockHandle {
	return &mockHandle{id: id, SolicitFunc: func(ctx context.Context, req types.SolicitRequest) types.SolicitResult {
		return types.SolicitResult{Outcome: types.OutcomeSilent, Reason: "no response before deadline"}
	}}
}

func handles(hs ...*mockHandle) []types.AgentHandle {
	out := make([]types.AgentHandle, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}

// stubScorer returns a scripted score per round; the leading proposal is the
// first viable statement.
type stubScorer struct {
	mu     sync.Mutex
	scores []float64
	calls  int
}

func (s *stubScorer) Score(_ context.Context, in consensus.Input) (consensus.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score := 0.0
	if s.calls < len(s.scores) {
		score = s.scores[s.calls]
	} else if len(s.scores) > 0 {
		score = s.scores[len(s.scores)-1]
	}
	s.calls++

	leading := ""
	for _, st := range in.Statements {
		if st.Viable() {
			leading = st.ID
			break
		}
	}
	return consensus.Result{Score: score, LeadingID: leading}, nil
}

func (s *stubScorer) Name() string { return "stub" }

func (s *stubScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// mockRepStore records proposed deltas and serves a fixed reputation table.
type mockRepStore struct {
	mu       sync.Mutex
	reps     map[string]float64
	GetErr   error
	proposed []types.ReputationDelta
}

func (m *mockRepStore) Get(_ context.Context, agentID string) (float64, error) {
	if m.GetErr != nil {
		return 0, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rep, ok := m.reps[agentID]; ok {
		return rep, nil
	}
	return 1.0, nil
}

func (m *mockRepStore) ProposeDelta(d types.ReputationDelta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposed = append(m.proposed, d)
}

func (m *mockRepStore) proposedDeltas() []types.ReputationDelta {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ReputationDelta, len(m.proposed))
	copy(out, m.proposed)
	return out
}

// mockVerifier serves a fixed evidence table.
type mockVerifier struct {
	evidence map[string]types.EvidenceResult
}

func (m *mockVerifier) Verify(_ context.Context, memoryID string) (types.EvidenceResult, error) {
	if res, ok := m.evidence[memoryID]; ok {
		return res, nil
	}
	return types.EvidenceResult{}, nil
}
