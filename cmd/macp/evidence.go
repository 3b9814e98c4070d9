package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"macp/internal/store"
)

// evidenceCmd manages the local evidence registry citations resolve
// against. Statements cite entries as [mem:ID].
var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Manage the evidence registry used for citation verification",
}

var evidenceAddCmd = &cobra.Command{
	Use:   "add [memory-id] [strength] [content]",
	Short: "Register an evidence entry with a strength in [0,1]",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runEvidenceAdd,
}

var evidenceCheckCmd = &cobra.Command{
	Use:   "check [memory-id]",
	Short: "Verify a citation against the registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvidenceCheck,
}

func init() {
	evidenceCmd.AddCommand(evidenceAddCmd)
	evidenceCmd.AddCommand(evidenceCheckCmd)
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.New(cfg.StorePath, logger)
}

func runEvidenceAdd(cmd *cobra.Command, args []string) error {
	strength, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid strength %q: %w", args[1], err)
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	content := args[2]
	for _, extra := range args[3:] {
		content += " " + extra
	}
	if err := db.AddEvidence(context.Background(), args[0], content, strength); err != nil {
		return err
	}
	fmt.Printf("registered [mem:%s] with strength %.2f\n", args[0], strength)
	return nil
}

func runEvidenceCheck(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.Verify(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !res.Exists {
		fmt.Printf("[mem:%s] does not verify\n", args[0])
		return nil
	}
	fmt.Printf("[mem:%s] verified, strength %.2f\n", args[0], res.Strength)
	return nil
}
