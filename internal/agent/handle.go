// Package agent provides the uniform capability wrapper around one debate
// participant. A Handle turns any Backend into the solicit contract the round
// manager relies on: a resolved result that never outlives its deadline.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"macp/internal/types"
)

// Backend is one concrete model integration (local runner or cloud API).
// Generate blocks until the model responds or ctx is done.
type Backend interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// Handle wraps a Backend for one participant.
type Handle struct {
	id      string
	role    string
	backend Backend
	system  string // role prompt, prepended to every solicitation
	logger  *zap.Logger
}

// NewHandle creates a participant handle. systemPrompt may be empty.
func NewHandle(id, role, systemPrompt string, backend Backend, logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{
		id:      id,
		role:    role,
		backend: backend,
		system:  systemPrompt,
		logger:  logger,
	}
}

// ID returns the participant id.
func (h *Handle) ID() string { return h.id }

// Role returns the participant's debate role.
func (h *Handle) Role() string { return h.role }

// Solicit asks the backend for a statement, enforcing req.Deadline as a hard
// wall-clock bound. The backend call runs in its own goroutine; if it is
// still pending at the deadline the result is Silent and the goroutine is
// abandoned to its cancelled context.
func (h *Handle) Solicit(ctx context.Context, req types.SolicitRequest) types.SolicitResult {
	start := time.Now()

	callCtx, cancel := context.WithDeadline(ctx, req.Deadline)
	defer cancel()

	prompt := req.Prompt
	if req.Transcript != "" {
		prompt = req.Transcript + "\n\n" + req.Prompt
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := h.backend.Generate(callCtx, h.system, prompt)
		done <- outcome{text, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = outcome{err: callCtx.Err()}
	}
	latency := time.Since(start)

	res := types.SolicitResult{Latency: latency}
	switch {
	case out.err != nil:
		if errors.Is(out.err, context.DeadlineExceeded) || errors.Is(out.err, context.Canceled) {
			res.Outcome = types.OutcomeSilent
			res.Reason = "no response before deadline"
			h.logger.Warn("participant silent",
				zap.String("participant", h.id),
				zap.Duration("latency", latency))
		} else {
			res.Outcome = types.OutcomeError
			res.Reason = out.err.Error()
			h.logger.Warn("backend error",
				zap.String("participant", h.id),
				zap.Error(out.err))
		}
	case strings.TrimSpace(out.text) == "":
		// a reply with no content is unusable, treated as a backend fault
		res.Outcome = types.OutcomeError
		res.Reason = "backend returned empty response"
	default:
		res.Outcome = types.OutcomeOK
		res.Text = strings.TrimSpace(out.text)
		h.logger.Debug("statement received",
			zap.String("participant", h.id),
			zap.Int("chars", len(res.Text)),
			zap.Duration("latency", latency))
	}
	return res
}
