package types

import (
	"context"
	"time"
)

// SolicitRequest carries everything a participant needs to produce a
// statement: the visible transcript so far, the round's prompt, and the hard
// wall-clock bound the caller will wait until.
type SolicitRequest struct {
	Transcript string    // full visible transcript up to the current turn
	Prompt     string    // the round's question or instruction
	Deadline   time.Time // hard bound; the handle must not block past it
}

// SolicitResult is the resolved outcome of one solicitation. Exactly one of
// the three outcomes applies: OK (Text set), Silent (deadline hit), or Error
// (backend/transport failure, Reason set).
type SolicitResult struct {
	Text    string
	Latency time.Duration
	Outcome StatementOutcome
	Reason  string
}

// AgentHandle is the uniform capability wrapper around one participant.
// Implementations wrap a concrete model backend and enforce the deadline
// themselves; Solicit never blocks past req.Deadline.
type AgentHandle interface {
	ID() string
	Role() string
	Solicit(ctx context.Context, req SolicitRequest) SolicitResult
}

// EvidenceVerifier resolves a cited memory reference to a verification
// outcome and an evidence-strength scalar. External collaborator; the engine
// never interprets how verification is performed.
type EvidenceVerifier interface {
	Verify(ctx context.Context, memoryID string) (EvidenceResult, error)
}

// ReputationStore owns persisted per-agent reputation. The engine reads a
// snapshot per round and stages deltas; it never writes reputation in-session.
// ProposeDelta is fire-and-forget from the engine's perspective.
type ReputationStore interface {
	Get(ctx context.Context, agentID string) (float64, error)
	ProposeDelta(delta ReputationDelta)
}

// CoherenceEvaluator scores the logical coherence of a single statement in
// [0,1]. The evaluator model itself is out of scope; the engine only needs
// the value.
type CoherenceEvaluator interface {
	Coherence(ctx context.Context, statement string) (float64, error)
}
