package session

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"macp/internal/types"
)

// Transcript is the append-only event log of one session: the structured
// record consumed by replay and audit tooling. Entries are immutable once
// appended. Serializes to one JSON record per line; encoding/json sorts map
// keys, so a recorded transcript marshals identically on every run.
type Transcript struct {
	mu        sync.Mutex
	sessionID string
	events    []types.Event
	now       func() time.Time
}

// NewTranscript creates an empty transcript for the session.
func NewTranscript(sessionID string) *Transcript {
	return &Transcript{
		sessionID: sessionID,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SessionID returns the owning session id.
func (t *Transcript) SessionID() string { return t.sessionID }

// Append records one event.
func (t *Transcript) Append(eventType types.EventType, round int, payload map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, types.Event{
		Type:      eventType,
		Timestamp: t.now(),
		Round:     round,
		Payload:   payload,
	})
}

// Transition records a state-machine transition with its triggering round
// and, when applicable, the round's consensus score.
func (t *Transcript) Transition(from, to types.SessionState, round int, score float64, reason string) {
	payload := map[string]any{
		"from": from.String(),
		"to":   to.String(),
	}
	if score >= 0 {
		payload["score"] = score
	}
	if reason != "" {
		payload["reason"] = reason
	}
	t.Append(types.EventStateTransition, round, payload)
}

// Events returns a copy of the recorded events.
func (t *Transcript) Events() []types.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Event, len(t.events))
	copy(out, t.events)
	return out
}

// Last returns the most recent event, or false when the transcript is empty.
func (t *Transcript) Last() (types.Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.events) == 0 {
		return types.Event{}, false
	}
	return t.events[len(t.events)-1], true
}

// WriteJSONL writes the transcript as one JSON record per line.
func (t *Transcript) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, ev := range t.Events() {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode event %d: %w", i, err)
		}
	}
	return nil
}

// ReadJSONL parses a transcript previously written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]types.Event, error) {
	dec := json.NewDecoder(r)
	var events []types.Event
	for {
		var ev types.Event
		if err := dec.Decode(&ev); err == io.EOF {
			return events, nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
}
