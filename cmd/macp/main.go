package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"macp/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "macp",
	Short: "macp - Multi-Agent Consensus Protocol engine",
	Long: `macp coordinates structured debates between AI participants.

Participants take turns speaking, rebut each other inside a questioning
window, and a quantitative consensus score decides when the debate ends.
Session transcripts are archived in SQLite and can be replayed.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "macp.json", "Path to the configuration file")

	rootCmd.AddCommand(debateCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(evidenceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config, falling back to
// defaults plus environment overrides when the file does not exist.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	return cfg, nil
}
