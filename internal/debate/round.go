// Package debate executes single rounds of a structured debate: sequential
// speaking turns, concurrent questioning windows, and a round-level watchdog
// that keeps one misbehaving backend from extending a round past its
// aggregate budget.
package debate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"macp/internal/types"
)

// Manager executes rounds for a fixed, ordered participant list.
type Manager struct {
	participants []types.AgentHandle
	mode         string // "round_robin" or "priority"
	turnTimeout  time.Duration
	window       time.Duration // questioning-window duration; 0 disables rebuttals
	evaluator    types.CoherenceEvaluator
	logger       *zap.Logger
}

// NewManager creates a round manager. evaluator may be nil, in which case
// every statement carries neutral coherence 1.0.
func NewManager(participants []types.AgentHandle, mode string, turnTimeout, window time.Duration, evaluator types.CoherenceEvaluator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		participants: participants,
		mode:         mode,
		turnTimeout:  turnTimeout,
		window:       window,
		evaluator:    evaluator,
		logger:       logger,
	}
}

// Budget is the aggregate wall-clock ceiling for one round.
func (m *Manager) Budget() time.Duration {
	return time.Duration(len(m.participants)) * (m.turnTimeout + m.window)
}

// ExecuteRound runs exactly one round: each participant speaks in order with
// a hard per-turn deadline, and after each accepted statement every other
// participant may raise one rebuttal inside the questioning window. Statement
// slots are recorded in speaking order regardless of resolution order. The
// returned record always has every slot filled, silent, or errored; ctx
// cancellation marks the remaining slots silent and returns the partial
// record so already-collected statements are retained.
func (m *Manager) ExecuteRound(ctx context.Context, round int, question string, history []types.RoundRecord, reputations map[string]float64) types.RoundRecord {
	order := speakingOrder(m.mode, round, m.participants, reputations)

	record := types.RoundRecord{
		Index:        round,
		FirstSpeaker: order[0].ID(),
		StartedAt:    time.Now().UTC(),
	}

	// round-level watchdog: no single backend can stretch the round past the
	// sum of per-turn timeouts plus questioning windows
	roundCtx, cancel := context.WithTimeout(ctx, m.Budget())
	defer cancel()

	m.logger.Info("round started",
		zap.Int("round", round),
		zap.String("first_speaker", record.FirstSpeaker),
		zap.String("order_mode", m.mode))

	for _, speaker := range order {
		if roundCtx.Err() != nil {
			record.Statements = append(record.Statements, types.Statement{
				ID:        uuid.NewString(),
				SpeakerID: speaker.ID(),
				Round:     round,
				Outcome:   types.OutcomeSilent,
				Reason:    budgetReason(ctx),
			})
			continue
		}

		st := m.takeTurn(roundCtx, round, question, history, record.Statements, speaker)
		record.Statements = append(record.Statements, st)

		if st.Viable() && m.window > 0 {
			rebuttals := m.collectRebuttals(roundCtx, round, st, order)
			record.Rebuttals = append(record.Rebuttals, rebuttals...)
		}
	}

	record.EndedAt = time.Now().UTC()
	m.logger.Info("round finished",
		zap.Int("round", round),
		zap.Int("viable", len(record.ViableStatements())),
		zap.Duration("elapsed", record.EndedAt.Sub(record.StartedAt)))
	return record
}

// takeTurn solicits one primary statement.
func (m *Manager) takeTurn(ctx context.Context, round int, question string, history []types.RoundRecord, earlier []types.Statement, speaker types.AgentHandle) types.Statement {
	deadline := time.Now().Add(m.turnTimeout)
	if budget, ok := ctx.Deadline(); ok && budget.Before(deadline) {
		deadline = budget
	}

	res := speaker.Solicit(ctx, types.SolicitRequest{
		Transcript: FormatTranscript(question, history, earlier),
		Prompt:     turnPrompt(round, question),
		Deadline:   deadline,
	})

	st := types.Statement{
		ID:        uuid.NewString(),
		SpeakerID: speaker.ID(),
		Round:     round,
		Text:      res.Text,
		Latency:   res.Latency,
		Outcome:   res.Outcome,
		Reason:    res.Reason,
	}
	if st.Viable() {
		st.Citations = ParseCitations(st.Text)
		st.Coherence = m.coherence(ctx, st.Text)
	}
	return st
}

// collectRebuttals gathers at most one rebuttal per other participant,
// concurrently, all bounded by the questioning window. Results are recorded
// in speaking order even though they resolve in arbitrary order; slots that
// produced nothing usable are dropped rather than recorded as noise.
func (m *Manager) collectRebuttals(ctx context.Context, round int, target types.Statement, order []types.AgentHandle) []types.Rebuttal {
	others := make([]types.AgentHandle, 0, len(order)-1)
	for _, p := range order {
		if p.ID() != target.SpeakerID {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return nil
	}

	windowCtx, cancel := context.WithTimeout(ctx, m.window)
	defer cancel()
	deadline := time.Now().Add(m.window)

	slots := make([]types.Rebuttal, len(others))
	g, gctx := errgroup.WithContext(windowCtx)
	for i, p := range others {
		g.Go(func() error {
			res := p.Solicit(gctx, types.SolicitRequest{
				Transcript: fmt.Sprintf("%s said:\n%s", target.SpeakerID, target.Text),
				Prompt:     "Raise your single strongest question or objection to this statement. One sentence.",
				Deadline:   deadline,
			})
			slots[i] = types.Rebuttal{
				FromID:   p.ID(),
				TargetID: target.ID,
				Round:    round,
				Text:     res.Text,
				Latency:  res.Latency,
				Outcome:  res.Outcome,
			}
			return nil
		})
	}
	// workers never return errors; Wait is the join point for the window
	_ = g.Wait()

	out := make([]types.Rebuttal, 0, len(slots))
	for _, r := range slots {
		if r.Outcome == types.OutcomeOK {
			out = append(out, r)
		}
	}
	return out
}

// coherence asks the evaluator for a logical-coherence value, defaulting to
// neutral when no evaluator is wired or the evaluator fails.
func (m *Manager) coherence(ctx context.Context, text string) float64 {
	if m.evaluator == nil {
		return 1.0
	}
	v, err := m.evaluator.Coherence(ctx, text)
	if err != nil {
		m.logger.Warn("coherence evaluator failed, using neutral weight", zap.Error(err))
		return 1.0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func turnPrompt(round int, question string) string {
	return fmt.Sprintf("Round %d of the debate on: %s\n\nState your current position. If you cite evidence, reference it as [mem:ID]. If other speakers have made points you agree with, say so explicitly.", round, question)
}

func budgetReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return "session cancelled before turn"
	}
	return "round budget exhausted before turn"
}
