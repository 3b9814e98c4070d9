package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"macp/internal/config"
	"macp/internal/consensus"
	"macp/internal/store"
	"macp/internal/types"
)

var rescore bool

// replayCmd inspects the transcript archive. Without arguments it lists
// archived sessions; with a session id it prints the full event log.
var replayCmd = &cobra.Command{
	Use:   "replay [session-id]",
	Short: "List archived sessions or replay one transcript",
	Long: `Without arguments, lists archived sessions newest first.

With a session id, prints the archived event log in recorded order.
The --rescore flag additionally re-runs the lexical consensus scorer
over each round using the reputations and evidence recorded with that
round; a recorded round always re-scores to the same value, even after
reputation deltas have been applied.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&rescore, "rescore", false, "Re-run the lexical scorer over archived rounds")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.New(cfg.StorePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if len(args) == 0 {
		return listSessions(ctx, db)
	}
	return replaySession(ctx, db, args[0])
}

func listSessions(ctx context.Context, db *store.Store) error {
	sessions, err := db.ListSessions(ctx, 20)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no archived sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %-19s  score %.3f  %d round(s)  %s\n",
			s.SessionID, s.State, s.FinalScore, s.Rounds, s.Question)
	}
	return nil
}

func replaySession(ctx context.Context, db *store.Store, sessionID string) error {
	events, err := db.LoadEvents(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		printEvent(ev)
	}

	if !rescore {
		return nil
	}

	scorer, err := consensus.New(config.ScorerLexical, nil)
	if err != nil {
		return err
	}
	fmt.Println("\nlexical re-score:")
	for _, r := range collectRounds(events) {
		result, err := scorer.Score(ctx, consensus.Input{
			Statements:  r.Statements,
			Reputations: r.Reputations,
			Evidence:    r.Evidence,
		})
		if err != nil {
			return err
		}
		fmt.Printf("  round %d: score %.3f, leading %s (recorded %.3f)\n",
			r.Index, result.Score, result.LeadingID, r.Recorded.Score)
	}
	return nil
}

// replayRound is one round reconstructed from archived events: the
// statements in speaking order plus the exact reputation snapshot and
// evidence results the scorer saw when the round was recorded.
type replayRound struct {
	Index       int
	Recorded    consensus.Result
	Statements  []types.Statement
	Reputations map[string]float64
	Evidence    map[string]types.EvidenceResult
}

// collectRounds folds an event log back into per-round scoring inputs,
// ordered by round index.
func collectRounds(events []types.Event) []replayRound {
	byIndex := make(map[int]*replayRound)
	getRound := func(idx int) *replayRound {
		if r, ok := byIndex[idx]; ok {
			return r
		}
		r := &replayRound{Index: idx}
		byIndex[idx] = r
		return r
	}
	for _, ev := range events {
		switch ev.Type {
		case types.EventStatement:
			var s types.Statement
			if decodePayload(ev.Payload["statement"], &s) && s.SpeakerID != "" {
				r := getRound(ev.Round)
				r.Statements = append(r.Statements, s)
			}
		case types.EventRoundScored:
			r := getRound(ev.Round)
			r.Recorded.Score = toFloat(ev.Payload["score"])
			if id, ok := ev.Payload["leading_id"].(string); ok {
				r.Recorded.LeadingID = id
			}
			decodePayload(ev.Payload["reputations"], &r.Reputations)
			decodePayload(ev.Payload["evidence"], &r.Evidence)
		}
	}
	rounds := make([]replayRound, 0, len(byIndex))
	for _, r := range byIndex {
		rounds = append(rounds, *r)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Index < rounds[j].Index })
	return rounds
}

func printEvent(ev types.Event) {
	ts := ev.Timestamp.Format("15:04:05.000")
	switch ev.Type {
	case types.EventStatement:
		var s types.Statement
		if decodePayload(ev.Payload["statement"], &s) && s.SpeakerID != "" {
			fmt.Printf("%s  r%d  %s [%s]: %s\n", ts, ev.Round, s.SpeakerID, s.Outcome, s.Text)
			return
		}
	case types.EventStateTransition:
		fmt.Printf("%s  r%d  %v -> %v", ts, ev.Round, ev.Payload["from"], ev.Payload["to"])
		if reason, ok := ev.Payload["reason"]; ok {
			fmt.Printf(" (%v)", reason)
		}
		fmt.Println()
		return
	case types.EventRoundScored:
		fmt.Printf("%s  r%d  scored %.3f, leading %v\n", ts, ev.Round, toFloat(ev.Payload["score"]), ev.Payload["leading_id"])
		return
	}
	fmt.Printf("%s  r%d  %s\n", ts, ev.Round, ev.Type)
}

// decodePayload re-marshals a payload value into its typed form. Live
// payloads hold the typed value itself while archived ones round-trip
// through JSON and arrive as generic maps; the re-marshal handles both.
func decodePayload(v any, out any) bool {
	if v == nil {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
