package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "chronicle",
	Short: "Background document-intelligence pipeline",
	Long:  "Extracts dates, people, and organizations from archival source text via a job queue, builds subject timelines, and detects conflicting claims between sources.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
