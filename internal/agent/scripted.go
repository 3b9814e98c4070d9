package agent

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedBackend replays a fixed sequence of responses. Used by tests and
// by transcript replay, where statements are known ahead of time.
type ScriptedBackend struct {
	mu        sync.Mutex
	name      string
	responses []string
	next      int

	// Err, when set, is returned on every call instead of a response.
	Err error
}

// NewScriptedBackend creates a backend that returns the given responses in
// order. Once exhausted it repeats the last response.
func NewScriptedBackend(name string, responses ...string) *ScriptedBackend {
	return &ScriptedBackend{name: name, responses: responses}
}

// Generate returns the next scripted response.
func (b *ScriptedBackend) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Err != nil {
		return "", b.Err
	}
	if len(b.responses) == 0 {
		return "", fmt.Errorf("scripted backend %s has no responses", b.name)
	}
	resp := b.responses[b.next]
	if b.next < len(b.responses)-1 {
		b.next++
	}
	return resp, nil
}

// Name returns the backend name.
func (b *ScriptedBackend) Name() string {
	return fmt.Sprintf("scripted:%s", b.name)
}
