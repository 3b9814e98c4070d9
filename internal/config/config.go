// Package config loads and validates engine configuration.
// Configuration comes from a JSON file, with environment variables taking
// precedence over file values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Speaking order modes.
const (
	OrderRoundRobin = "round_robin"
	OrderPriority   = "priority"
)

// Scorer variants.
const (
	ScorerEmbedding = "embedding"
	ScorerLexical   = "lexical"
	ScorerHybrid    = "hybrid"
)

// Config holds all engine configuration consumed at session creation.
type Config struct {
	// Debate protocol
	MaxRounds               int     `json:"max_rounds"`
	ConsensusThreshold      float64 `json:"consensus_threshold"`
	PerTurnTimeoutMS        int     `json:"per_turn_timeout_ms"`
	QuestioningWindowMS     int     `json:"questioning_window_ms"`
	SpeakingOrderMode       string  `json:"speaking_order_mode"`
	Scorer                  string  `json:"scorer"`
	ConsensusCheckFromRound int     `json:"consensus_check_start_round"`
	SummarizeOnConsensus    bool    `json:"summarize_on_consensus"`

	// Backends
	OllamaEndpoint string  `json:"ollama_endpoint"`
	GenAIAPIKey    string  `json:"genai_api_key,omitempty"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`

	// Similarity oracle
	Embedding EmbeddingConfig `json:"embedding"`

	// Participants, in fixed speaking-order-zero positions
	Participants []ParticipantConfig `json:"participants"`

	// Persistence
	StorePath string `json:"store_path"`

	// Role definitions (optional; built-in library used when empty)
	RolesPath string `json:"roles_path,omitempty"`

	Logging LoggingConfig `json:"logging"`
}

// EmbeddingConfig selects the statement-similarity embedding provider.
type EmbeddingConfig struct {
	Provider    string `json:"provider"` // "ollama" or "genai"
	OllamaModel string `json:"ollama_model"`
	GenAIModel  string `json:"genai_model"`
}

// ParticipantConfig describes one debate participant.
type ParticipantConfig struct {
	ID       string `json:"id"`
	Provider string `json:"provider"` // "ollama" or "genai"
	Model    string `json:"model"`
	Role     string `json:"role,omitempty"`
}

// LoggingConfig controls engine logging.
type LoggingConfig struct {
	Debug bool `json:"debug"`
}

// Default returns the baseline configuration. Values mirror the protocol
// defaults: 90s per turn, 30s questioning windows, 0.8 consensus threshold.
func Default() Config {
	return Config{
		MaxRounds:               5,
		ConsensusThreshold:      0.8,
		PerTurnTimeoutMS:        90_000,
		QuestioningWindowMS:     30_000,
		SpeakingOrderMode:       OrderRoundRobin,
		Scorer:                  ScorerHybrid,
		ConsensusCheckFromRound: 1,
		SummarizeOnConsensus:    true,
		OllamaEndpoint:          "http://localhost:11434",
		Temperature:             0.7,
		MaxTokens:               1000,
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			OllamaModel: "embeddinggemma",
			GenAIModel:  "gemini-embedding-001",
		},
		StorePath: "macp.db",
	}
}

// Load reads configuration from a JSON file, layers environment overrides on
// top, and validates the result. A missing file is not an error: defaults
// plus environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides layers MACP_* environment variables over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MACP_OLLAMA_ENDPOINT"); v != "" {
		c.OllamaEndpoint = v
	}
	if v := os.Getenv("MACP_GENAI_API_KEY"); v != "" {
		c.GenAIAPIKey = v
	}
	if v := os.Getenv("MACP_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("MACP_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRounds = n
		}
	}
	if v := os.Getenv("MACP_CONSENSUS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ConsensusThreshold = f
		}
	}
	if v := os.Getenv("MACP_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
}

// Validate checks ranges and enum fields.
func (c Config) Validate() error {
	if c.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be >= 1, got %d", c.MaxRounds)
	}
	if c.ConsensusThreshold <= 0 || c.ConsensusThreshold > 1 {
		return fmt.Errorf("consensus_threshold must be in (0,1], got %v", c.ConsensusThreshold)
	}
	if c.PerTurnTimeoutMS <= 0 {
		return fmt.Errorf("per_turn_timeout_ms must be positive, got %d", c.PerTurnTimeoutMS)
	}
	if c.QuestioningWindowMS < 0 {
		return fmt.Errorf("questioning_window_ms must be >= 0, got %d", c.QuestioningWindowMS)
	}
	switch c.SpeakingOrderMode {
	case OrderRoundRobin, OrderPriority:
	default:
		return fmt.Errorf("speaking_order_mode must be %q or %q, got %q",
			OrderRoundRobin, OrderPriority, c.SpeakingOrderMode)
	}
	switch c.Scorer {
	case ScorerEmbedding, ScorerLexical, ScorerHybrid:
	default:
		return fmt.Errorf("scorer must be one of %q, %q, %q, got %q",
			ScorerEmbedding, ScorerLexical, ScorerHybrid, c.Scorer)
	}
	if c.ConsensusCheckFromRound < 1 {
		return fmt.Errorf("consensus_check_start_round must be >= 1, got %d", c.ConsensusCheckFromRound)
	}
	seen := make(map[string]bool, len(c.Participants))
	for i, p := range c.Participants {
		if p.ID == "" {
			return fmt.Errorf("participant %d has empty id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate participant id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// PerTurnTimeout returns the per-turn timeout as a duration.
func (c Config) PerTurnTimeout() time.Duration {
	return time.Duration(c.PerTurnTimeoutMS) * time.Millisecond
}

// QuestioningWindow returns the questioning-window duration.
func (c Config) QuestioningWindow() time.Duration {
	return time.Duration(c.QuestioningWindowMS) * time.Millisecond
}

// RoundBudget is the aggregate wall-clock ceiling for one round: the sum of
// per-turn timeouts plus questioning windows for every participant. One
// misbehaving backend can never extend a round past this.
func (c Config) RoundBudget(participants int) time.Duration {
	perSpeaker := c.PerTurnTimeout() + c.QuestioningWindow()
	return time.Duration(participants) * perSpeaker
}

// Save writes the configuration to a JSON file.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
