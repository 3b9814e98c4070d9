// Package types holds the shared domain types of the debate engine.
// Kept dependency-free so every other package can import it without cycles.
package types

import (
	"time"
)

// SessionState represents the lifecycle state of a debate session.
type SessionState int32

const (
	SessionInitialized SessionState = iota
	SessionInProgress
	SessionConsensusReached
	SessionTimeoutTerminated
	SessionAborted
)

func (s SessionState) String() string {
	switch s {
	case SessionInitialized:
		return "initialized"
	case SessionInProgress:
		return "in_progress"
	case SessionConsensusReached:
		return "consensus_reached"
	case SessionTimeoutTerminated:
		return "timeout_terminated"
	case SessionAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionConsensusReached, SessionTimeoutTerminated, SessionAborted:
		return true
	default:
		return false
	}
}

// StatementOutcome classifies how a participant's turn slot resolved.
type StatementOutcome string

const (
	// OutcomeOK means the backend produced a usable statement in time.
	OutcomeOK StatementOutcome = "ok"

	// OutcomeSilent means no response arrived before the deadline.
	OutcomeSilent StatementOutcome = "silent"

	// OutcomeError means the backend failed or returned an unusable result.
	OutcomeError StatementOutcome = "error"
)

// Statement is one participant's recorded contribution in a round.
// Immutable once recorded into a RoundRecord.
type Statement struct {
	ID        string           `json:"id"`
	SpeakerID string           `json:"speaker_id"`
	Round     int              `json:"round"`
	Text      string           `json:"text,omitempty"`
	Citations []string         `json:"citations,omitempty"`
	Coherence float64          `json:"coherence"`
	Latency   time.Duration    `json:"latency_ns"`
	Outcome   StatementOutcome `json:"outcome"`
	Reason    string           `json:"reason,omitempty"` // human-readable failure reason for silent/error slots
}

// Viable reports whether the statement participates in consensus scoring.
func (s Statement) Viable() bool {
	return s.Outcome == OutcomeOK
}

// Rebuttal is a question or challenge raised against a speaker's statement
// during the questioning window. Collected but never scored as a primary
// statement.
type Rebuttal struct {
	FromID   string           `json:"from_id"`
	TargetID string           `json:"target_id"` // statement being questioned
	Round    int              `json:"round"`
	Text     string           `json:"text,omitempty"`
	Latency  time.Duration    `json:"latency_ns"`
	Outcome  StatementOutcome `json:"outcome"`
}

// RoundRecord is the completed record of one debate round. Statement slots
// are ordered by speaking order, which is canonical regardless of response
// arrival time. Finalized by the round manager, never mutated afterwards.
type RoundRecord struct {
	Index        int         `json:"index"`
	FirstSpeaker string      `json:"first_speaker"`
	Statements   []Statement `json:"statements"`
	Rebuttals    []Rebuttal  `json:"rebuttals,omitempty"`
	Score        float64     `json:"score"`
	LeadingID    string      `json:"leading_id,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      time.Time   `json:"ended_at"`
}

// ViableStatements returns the statements considered for consensus scoring,
// in speaking order.
func (r RoundRecord) ViableStatements() []Statement {
	out := make([]Statement, 0, len(r.Statements))
	for _, s := range r.Statements {
		if s.Viable() {
			out = append(out, s)
		}
	}
	return out
}

// AllSilent reports whether every slot in the round failed to produce a
// usable statement.
func (r RoundRecord) AllSilent() bool {
	return len(r.ViableStatements()) == 0
}

// EvidenceResult is the verification outcome for one cited memory reference.
type EvidenceResult struct {
	Exists   bool    `json:"exists"`
	Strength float64 `json:"strength"` // in [0,1], meaningful only when Exists
}

// ReputationDelta is a proposed post-session adjustment to an agent's
// persisted reputation. The engine stages deltas during a session; the
// external store applies them after finalization.
type ReputationDelta struct {
	AgentID   string  `json:"agent_id"`
	Delta     float64 `json:"delta"`
	Reason    string  `json:"reason"`
	SessionID string  `json:"session_id"`
}

// EventType tags a transcript event.
type EventType string

const (
	EventSessionCreated   EventType = "session_created"
	EventStateTransition  EventType = "state_transition"
	EventRoundStarted     EventType = "round_started"
	EventStatement        EventType = "statement_recorded"
	EventRebuttal         EventType = "rebuttal_recorded"
	EventRoundScored      EventType = "round_scored"
	EventConsensusSummary EventType = "consensus_summary"
	EventDeltaProposed    EventType = "reputation_delta_proposed"
)

// Event is one immutable entry in the session transcript. Payload values are
// restricted to JSON-serializable types; encoding/json sorts map keys, so a
// recorded transcript marshals identically on every run.
type Event struct {
	Type      EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Round     int            `json:"round_index"`
	Payload   map[string]any `json:"payload,omitempty"`
}
