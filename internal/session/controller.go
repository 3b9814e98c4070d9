// Package session owns the debate session state machine: it schedules
// rounds, scores them, decides continuation versus termination, and emits
// the session transcript.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"macp/internal/config"
	"macp/internal/consensus"
	"macp/internal/debate"
	"macp/internal/types"
)

// Reputation deltas staged by the engine and applied by the external store
// after finalization.
const (
	silencePenalty = -0.10
	leadingBonus   = 0.05
)

// Controller drives one session from creation to a terminal state.
type Controller struct {
	id           string
	question     string
	cfg          config.Config
	participants []types.AgentHandle
	manager      *debate.Manager
	scorer       consensus.Scorer
	reputation   types.ReputationStore
	verifier     types.EvidenceVerifier
	transcript   *Transcript
	logger       *zap.Logger

	mu           sync.Mutex
	state        types.SessionState
	rounds       []types.RoundRecord
	deltas       []types.ReputationDelta
	cancelFn     context.CancelFunc
	cancelReason string
}

// Outcome is the finalized result of a session.
type Outcome struct {
	SessionID  string
	Question   string
	State      types.SessionState
	FinalScore float64
	Rounds     []types.RoundRecord
	Leading    types.Statement // best-effort conclusion; zero when none exists
	Consensual bool            // true only for ConsensusReached
	Summary    string          // closing summary, when one was produced
	Reason     string          // human-readable reason for the terminal state
}

// New creates a session controller over a fixed participant list. The
// participant order given here is position zero for round-robin rotation.
func New(cfg config.Config, question string, participants []types.AgentHandle, manager *debate.Manager, scorer consensus.Scorer, reputation types.ReputationStore, verifier types.EvidenceVerifier, logger *zap.Logger) (*Controller, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("a debate needs at least 2 participants, got %d", len(participants))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	c := &Controller{
		id:           id,
		question:     question,
		cfg:          cfg,
		participants: participants,
		manager:      manager,
		scorer:       scorer,
		reputation:   reputation,
		verifier:     verifier,
		transcript:   NewTranscript(id),
		logger:       logger.With(zap.String("session", id)),
		state:        types.SessionInitialized,
	}

	ids := make([]any, len(participants))
	for i, p := range participants {
		ids[i] = p.ID()
	}
	c.transcript.Append(types.EventSessionCreated, 0, map[string]any{
		"question":     question,
		"participants": ids,
		"max_rounds":   cfg.MaxRounds,
		"threshold":    cfg.ConsensusThreshold,
		"scorer":       scorer.Name(),
		"order_mode":   cfg.SpeakingOrderMode,
	})
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// State returns the current session state.
func (c *Controller) State() types.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the session transcript.
func (c *Controller) Transcript() *Transcript { return c.transcript }

// Cancel requests session abortion. The session transitions to Aborted at
// the next safe checkpoint (end of the in-flight turn); rounds already
// recorded are retained.
func (c *Controller) Cancel(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelReason == "" {
		c.cancelReason = reason
	}
	if c.cancelFn != nil {
		c.cancelFn()
	}
}

func (c *Controller) cancelled() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelReason, c.cancelReason != ""
}

// Run executes the session to a terminal state. It never returns an error
// for per-statement or whole-round failures: those resolve to terminal
// states with reasons recorded in the transcript. The returned error covers
// only misuse (running a session twice).
func (c *Controller) Run(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	if c.state != types.SessionInitialized {
		c.mu.Unlock()
		return nil, fmt.Errorf("session %s already started (state %s)", c.id, c.state)
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	c.cancelFn = cancel
	c.state = types.SessionInProgress
	c.mu.Unlock()
	defer cancel()

	c.transcript.Transition(types.SessionInitialized, types.SessionInProgress, 0, -1, "session started")
	c.logger.Info("session started",
		zap.String("question", c.question),
		zap.Int("participants", len(c.participants)),
		zap.Int("max_rounds", c.cfg.MaxRounds))

	var lastResult consensus.Result
	for round := 1; round <= c.cfg.MaxRounds; round++ {
		if reason, ok := c.cancelReasonFor(ctx); ok {
			return c.abort(round-1, reason), nil
		}

		reputations := c.snapshotReputations(sessionCtx)
		c.transcript.Append(types.EventRoundStarted, round, map[string]any{
			"order_mode": c.cfg.SpeakingOrderMode,
		})

		record := c.manager.ExecuteRound(sessionCtx, round, c.question, c.roundsCopy(), reputations)
		c.recordRoundEvents(record)
		c.stageSilenceDeltas(record)

		if reason, ok := c.cancelReasonFor(ctx); ok {
			c.appendRound(record)
			return c.abort(round, reason), nil
		}

		if record.AllSilent() {
			c.appendRound(record)
			return c.abort(round, fmt.Sprintf("all %d participants silent or errored in round %d", len(c.participants), round)), nil
		}

		evidence := c.verifyEvidence(sessionCtx, record.Statements)
		result, err := c.scorer.Score(sessionCtx, consensus.Input{
			Statements:  record.Statements,
			Reputations: reputations,
			Evidence:    evidence,
		})
		if err != nil {
			// scoring is best-effort within a round; an unusable oracle
			// yields no consensus rather than a dead session
			c.logger.Warn("scorer failed, treating round as no-consensus", zap.Error(err))
			result = consensus.Result{}
		}
		record.Score = result.Score
		record.LeadingID = result.LeadingID
		c.appendRound(record)
		lastResult = result

		// the snapshot and verification results go into the event so an
		// archived round carries every scoring input and replays to the
		// same score even after deltas land
		c.transcript.Append(types.EventRoundScored, round, map[string]any{
			"score":       result.Score,
			"leading_id":  result.LeadingID,
			"viable":      len(record.ViableStatements()),
			"reputations": reputations,
			"evidence":    evidence,
		})
		c.logger.Info("round scored",
			zap.Int("round", round),
			zap.Float64("score", result.Score),
			zap.String("leading", result.LeadingID))

		if speaker, ok := c.speakerOf(result.LeadingID); ok {
			c.stageDelta(speaker, leadingBonus, fmt.Sprintf("leading proposal in round %d", round))
		}

		if round >= c.cfg.ConsensusCheckFromRound && result.Score >= c.cfg.ConsensusThreshold {
			return c.reachConsensus(sessionCtx, round, result), nil
		}

		if round < c.cfg.MaxRounds {
			c.transcript.Transition(types.SessionInProgress, types.SessionInProgress, round, result.Score,
				fmt.Sprintf("score %.3f below threshold %.3f, continuing", result.Score, c.cfg.ConsensusThreshold))
		}
	}

	return c.timeoutTerminate(lastResult), nil
}

// cancelReasonFor folds explicit Cancel calls and parent-context
// cancellation into one reason.
func (c *Controller) cancelReasonFor(parent context.Context) (string, bool) {
	if reason, ok := c.cancelled(); ok {
		return "cancellation requested: " + reason, true
	}
	if parent.Err() != nil {
		return "cancellation requested: context cancelled", true
	}
	return "", false
}

func (c *Controller) reachConsensus(ctx context.Context, round int, result consensus.Result) *Outcome {
	c.setState(types.SessionConsensusReached)
	reason := fmt.Sprintf("consensus score %.3f reached threshold %.3f in round %d", result.Score, c.cfg.ConsensusThreshold, round)
	c.flushDeltas()
	c.transcript.Transition(types.SessionInProgress, types.SessionConsensusReached, round, result.Score, reason)

	summary := ""
	if c.cfg.SummarizeOnConsensus {
		summary = c.solicitSummary(ctx, round, result)
	}

	out := c.outcome(result.Score, result.LeadingID, true, reason)
	out.Summary = summary
	return out
}

func (c *Controller) timeoutTerminate(last consensus.Result) *Outcome {
	c.setState(types.SessionTimeoutTerminated)
	round := c.cfg.MaxRounds
	reason := fmt.Sprintf("max rounds (%d) exhausted without reaching threshold %.3f; emitting last leading proposal as non-consensual conclusion", round, c.cfg.ConsensusThreshold)
	c.flushDeltas()
	c.transcript.Transition(types.SessionInProgress, types.SessionTimeoutTerminated, round, last.Score, reason)
	return c.outcome(last.Score, last.LeadingID, false, reason)
}

func (c *Controller) abort(round int, reason string) *Outcome {
	c.setState(types.SessionAborted)
	c.flushDeltas()
	c.transcript.Transition(types.SessionInProgress, types.SessionAborted, round, -1, reason)
	c.logger.Warn("session aborted", zap.Int("round", round), zap.String("reason", reason))
	return c.outcome(0, "", false, reason)
}

// flushDeltas hands every staged reputation delta to the external store.
// The store applies them on its own schedule after finalization; the engine
// only proposes.
func (c *Controller) flushDeltas() {
	c.mu.Lock()
	deltas := make([]types.ReputationDelta, len(c.deltas))
	copy(deltas, c.deltas)
	c.mu.Unlock()

	for _, d := range deltas {
		c.reputation.ProposeDelta(d)
		c.transcript.Append(types.EventDeltaProposed, 0, map[string]any{
			"agent_id": d.AgentID,
			"delta":    d.Delta,
			"reason":   d.Reason,
		})
	}
}

// solicitSummary asks the leading proposal's speaker to close the debate.
// Best-effort: silence or failure just means no summary.
func (c *Controller) solicitSummary(ctx context.Context, round int, result consensus.Result) string {
	speaker, ok := c.speakerOf(result.LeadingID)
	if !ok {
		return ""
	}
	var handle types.AgentHandle
	for _, p := range c.participants {
		if p.ID() == speaker {
			handle = p
			break
		}
	}
	if handle == nil {
		return ""
	}

	res := handle.Solicit(ctx, types.SolicitRequest{
		Transcript: debate.FormatTranscript(c.question, c.roundsCopy(), nil),
		Prompt:     "The debate has converged on your position. Summarize the consensus in a short closing statement.",
		Deadline:   time.Now().Add(c.cfg.PerTurnTimeout()),
	})
	if res.Outcome != types.OutcomeOK {
		c.logger.Warn("consensus summary unavailable", zap.String("outcome", string(res.Outcome)))
		return ""
	}
	c.transcript.Append(types.EventConsensusSummary, round, map[string]any{
		"speaker": speaker,
		"text":    res.Text,
	})
	return res.Text
}

// snapshotReputations reads the per-round reputation snapshot. A store
// failure falls back to the neutral baseline so one flaky read cannot skew a
// round.
func (c *Controller) snapshotReputations(ctx context.Context) map[string]float64 {
	snap := make(map[string]float64, len(c.participants))
	for _, p := range c.participants {
		rep, err := c.reputation.Get(ctx, p.ID())
		if err != nil {
			c.logger.Warn("reputation read failed, using baseline",
				zap.String("participant", p.ID()), zap.Error(err))
			rep = 1.0
		}
		snap[p.ID()] = rep
	}
	return snap
}

// verifyEvidence resolves every citation in the round through the evidence
// verifier. Verification failures count as unverifiable, never as fatal.
func (c *Controller) verifyEvidence(ctx context.Context, statements []types.Statement) map[string]types.EvidenceResult {
	refs := consensus.Citations(statements)
	if len(refs) == 0 {
		return nil
	}
	out := make(map[string]types.EvidenceResult, len(refs))
	for _, ref := range refs {
		res, err := c.verifier.Verify(ctx, ref)
		if err != nil {
			c.logger.Warn("evidence verification failed",
				zap.String("memory_id", ref), zap.Error(err))
			res = types.EvidenceResult{}
		}
		out[ref] = res
	}
	return out
}

func (c *Controller) recordRoundEvents(record types.RoundRecord) {
	for _, s := range record.Statements {
		c.transcript.Append(types.EventStatement, record.Index, map[string]any{
			"statement": s,
		})
	}
	for _, r := range record.Rebuttals {
		c.transcript.Append(types.EventRebuttal, record.Index, map[string]any{
			"rebuttal": r,
		})
	}
}

// stageSilenceDeltas proposes reputation penalties for silent and errored
// slots. Silence is excluded from scoring but still counts against the
// participant.
func (c *Controller) stageSilenceDeltas(record types.RoundRecord) {
	for _, s := range record.Statements {
		if !s.Viable() {
			c.stageDelta(s.SpeakerID, silencePenalty, fmt.Sprintf("%s in round %d", s.Outcome, record.Index))
		}
	}
}

func (c *Controller) stageDelta(agentID string, delta float64, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deltas = append(c.deltas, types.ReputationDelta{
		AgentID:   agentID,
		Delta:     delta,
		Reason:    reason,
		SessionID: c.id,
	})
}

func (c *Controller) setState(s types.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) appendRound(r types.RoundRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds = append(c.rounds, r)
}

func (c *Controller) roundsCopy() []types.RoundRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.RoundRecord, len(c.rounds))
	copy(out, c.rounds)
	return out
}

// speakerOf resolves a statement id to its speaker across recorded rounds.
func (c *Controller) speakerOf(statementID string) (string, bool) {
	if statementID == "" {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.rounds) - 1; i >= 0; i-- {
		for _, s := range c.rounds[i].Statements {
			if s.ID == statementID {
				return s.SpeakerID, true
			}
		}
	}
	return "", false
}

func (c *Controller) outcome(score float64, leadingID string, consensual bool, reason string) *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &Outcome{
		SessionID:  c.id,
		Question:   c.question,
		State:      c.state,
		FinalScore: score,
		Rounds:     c.rounds,
		Consensual: consensual,
		Reason:     reason,
	}
	for i := len(c.rounds) - 1; i >= 0 && leadingID != ""; i-- {
		for _, s := range c.rounds[i].Statements {
			if s.ID == leadingID {
				out.Leading = s
				return out
			}
		}
	}
	return out
}
