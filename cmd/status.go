package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/store"
)

var statusFailed bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth by job status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStoreOnly(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.CountJobs(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("pending     %d\n", counts.Pending)
		fmt.Printf("processing  %d\n", counts.Processing)
		fmt.Printf("completed   %d\n", counts.Completed)
		fmt.Printf("failed      %d\n", counts.Failed)

		if statusFailed && counts.Failed > 0 {
			jobs, err := st.ListJobs(ctx, store.JobFilter{Status: model.JobFailed, Limit: 50})
			if err != nil {
				return err
			}
			fmt.Println("\nfailed jobs:")
			for _, j := range jobs {
				fmt.Printf("  %s  %s:%s  attempts=%d  %s\n", j.ID, j.SourceType, j.SourceID, j.Attempts, j.Error)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusFailed, "failed", false, "list terminally failed jobs with their errors")
	rootCmd.AddCommand(statusCmd)
}
