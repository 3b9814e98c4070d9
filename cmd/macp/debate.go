package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"macp/internal/agent"
	"macp/internal/config"
	"macp/internal/consensus"
	"macp/internal/debate"
	"macp/internal/embedding"
	"macp/internal/roles"
	"macp/internal/session"
	"macp/internal/store"
	"macp/internal/types"
)

// debateCmd runs one full debate session over the configured participants.
var debateCmd = &cobra.Command{
	Use:   "debate [question]",
	Short: "Run a multi-round debate until consensus or round exhaustion",
	Long: `Runs the full debate protocol on the given question:

  1. Each round, participants speak in turn and rebut each other
     inside the questioning window.
  2. Statements are scored for pairwise agreement, weighted by
     reputation, coherence, and verified evidence.
  3. The session ends when the consensus score crosses the threshold,
     rounds run out, or every participant goes silent.

The finished transcript is archived and staged reputation deltas are
applied to the ledger.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDebate,
}

func runDebate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Participants) < 2 {
		return fmt.Errorf("a debate needs at least 2 configured participants, got %d", len(cfg.Participants))
	}

	question := strings.Join(args, " ")

	db, err := store.New(cfg.StorePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	library, err := loadRoles(cfg)
	if err != nil {
		return err
	}

	participants, err := buildParticipants(cfg, library)
	if err != nil {
		return err
	}

	scorer, err := buildScorer(cfg)
	if err != nil {
		return err
	}

	manager := debate.NewManager(participants, cfg.SpeakingOrderMode,
		cfg.PerTurnTimeout(), cfg.QuestioningWindow(), nil, logger)

	ctrl, err := session.New(cfg, question, participants, manager, scorer, db, db, logger)
	if err != nil {
		return err
	}

	// Graceful shutdown: the first signal cancels the session at the next
	// checkpoint, a second one kills the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling session")
		ctrl.Cancel("operator interrupt")
	}()

	outcome, err := ctrl.Run(ctx)
	if err != nil {
		return err
	}

	if err := db.ArchiveSession(ctx, store.SessionRecord{
		SessionID:    outcome.SessionID,
		Question:     outcome.Question,
		State:        outcome.State.String(),
		FinalScore:   outcome.FinalScore,
		Rounds:       len(outcome.Rounds),
		LeadingAgent: outcome.Leading.SpeakerID,
	}, ctrl.Transcript().Events()); err != nil {
		logger.Warn("failed to archive session", zap.Error(err))
	}

	applied, err := db.ApplyDeltas(ctx, outcome.SessionID)
	if err != nil {
		logger.Warn("failed to apply reputation deltas", zap.Error(err))
	} else if applied > 0 {
		logger.Info("reputation deltas applied", zap.Int("count", applied))
	}

	printOutcome(outcome)
	return nil
}

func printOutcome(out *session.Outcome) {
	fmt.Printf("Session:  %s\n", out.SessionID)
	fmt.Printf("Question: %s\n", out.Question)
	fmt.Printf("State:    %s after %d round(s)\n", out.State, len(out.Rounds))
	fmt.Printf("Score:    %.3f\n", out.FinalScore)
	if out.Reason != "" {
		fmt.Printf("Reason:   %s\n", out.Reason)
	}
	if out.Leading.SpeakerID != "" {
		fmt.Printf("\nLeading proposal (%s):\n%s\n", out.Leading.SpeakerID, out.Leading.Text)
	}
	if out.Summary != "" {
		fmt.Printf("\nConsensus summary:\n%s\n", out.Summary)
	}
}

// loadRoles returns the persona library, from file when configured.
func loadRoles(cfg config.Config) (*roles.Library, error) {
	if cfg.RolesPath == "" {
		return roles.DefaultLibrary(), nil
	}
	return roles.LoadFile(cfg.RolesPath)
}

// buildParticipants turns participant configs into live agent handles.
// The first configured participant takes the proponent position for
// adversarial roles.
func buildParticipants(cfg config.Config, library *roles.Library) ([]types.AgentHandle, error) {
	handles := make([]types.AgentHandle, 0, len(cfg.Participants))
	for i, p := range cfg.Participants {
		var prompt string
		role := p.Role
		if role != "" {
			var err error
			prompt, err = library.PromptFor(role, i == 0)
			if err != nil {
				return nil, fmt.Errorf("participant %s: %w", p.ID, err)
			}
		}

		backend, err := buildBackend(cfg, p)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", p.ID, err)
		}
		handles = append(handles, agent.NewHandle(p.ID, role, prompt, backend, logger))
	}
	return handles, nil
}

func buildBackend(cfg config.Config, p config.ParticipantConfig) (agent.Backend, error) {
	switch p.Provider {
	case "ollama":
		return agent.NewOllamaBackend(cfg.OllamaEndpoint, p.Model, cfg.Temperature, cfg.MaxTokens), nil
	case "genai":
		return agent.NewGenAIBackend(cfg.GenAIAPIKey, p.Model, cfg.Temperature, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported provider %q (use 'ollama' or 'genai')", p.Provider)
	}
}

// buildScorer assembles the configured consensus scorer, creating an
// embedding engine only when the variant needs one.
func buildScorer(cfg config.Config) (consensus.Scorer, error) {
	var engine embedding.Engine
	if cfg.Scorer != config.ScorerLexical {
		var err error
		engine, err = embedding.NewEngine(embedding.Config{
			Provider:       cfg.Embedding.Provider,
			OllamaEndpoint: cfg.OllamaEndpoint,
			OllamaModel:    cfg.Embedding.OllamaModel,
			GenAIAPIKey:    cfg.GenAIAPIKey,
			GenAIModel:     cfg.Embedding.GenAIModel,
		})
		if err != nil {
			return nil, err
		}
	}
	return consensus.New(cfg.Scorer, engine)
}
