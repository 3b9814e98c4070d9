package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"macp/internal/types"
)

// askCmd solicits every configured participant concurrently for a
// one-shot answer. No rounds, no rebuttals, no scoring.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask every configured participant the question in parallel",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Participants) == 0 {
		return fmt.Errorf("no participants configured")
	}

	library, err := loadRoles(cfg)
	if err != nil {
		return err
	}
	participants, err := buildParticipants(cfg, library)
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	deadline := time.Now().Add(cfg.PerTurnTimeout())
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	results := make([]types.SolicitResult, len(participants))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range participants {
		g.Go(func() error {
			results[i] = p.Solicit(gctx, types.SolicitRequest{
				Prompt:   question,
				Deadline: deadline,
			})
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range participants {
		res := results[i]
		fmt.Printf("=== %s", p.ID())
		if p.Role() != "" {
			fmt.Printf(" (%s)", p.Role())
		}
		fmt.Println(" ===")
		switch res.Outcome {
		case types.OutcomeOK:
			fmt.Printf("%s\n\n", res.Text)
		case types.OutcomeSilent:
			fmt.Printf("(no answer within %s)\n\n", cfg.PerTurnTimeout())
		default:
			fmt.Printf("(failed: %s)\n\n", res.Reason)
		}
	}
	return nil
}
