package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the extraction queue until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Queue.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		zap.L().Info("shutting down, waiting for in-flight jobs")
		env.Queue.Stop()
		logCostTotals(env.Costs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
