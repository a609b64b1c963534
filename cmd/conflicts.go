package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/conflict"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/store"
)

var conflictFlags struct {
	subject         string
	includeResolved bool
	resolution      string
	notes           string
	resolvedBy      string
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve contradictory fact claims",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts for a subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStoreOnly(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		conflicts, err := st.ListConflicts(ctx, store.ConflictFilter{
			SubjectID:       conflictFlags.subject,
			IncludeResolved: conflictFlags.includeResolved,
		})
		if err != nil {
			return err
		}

		if len(conflicts) == 0 {
			fmt.Println("no conflicts")
			return nil
		}
		for _, c := range conflicts {
			state := "unresolved"
			if c.Resolved {
				state = fmt.Sprintf("resolved=%s by %s", c.Resolution, c.ResolvedBy)
			}
			fmt.Printf("%s  %s/%s  %q (tier %d, %.2f) vs %q (tier %d, %.2f)  [%s]\n",
				c.ID, c.SubjectID, c.FieldName,
				c.ClaimA.Value, c.ClaimA.AuthorityTier, c.ClaimA.Confidence,
				c.ClaimB.Value, c.ClaimB.AuthorityTier, c.ClaimB.Confidence,
				state,
			)
		}
		return nil
	},
}

var conflictsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Scan a subject's date claims for new conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if conflictFlags.subject == "" {
			return eris.New("--subject is required")
		}

		st, err := initStoreOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := conflict.NewDetector(st).DetectSubject(cmd.Context(), conflictFlags.subject)
		if err != nil {
			return err
		}
		fmt.Printf("%d new conflicts\n", len(created))
		return nil
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Apply a manual resolution to a conflict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res := model.Resolution(conflictFlags.resolution)
		switch res {
		case model.ResolutionClaimA, model.ResolutionClaimB, model.ResolutionBothValid, model.ResolutionNeedsReview:
		default:
			return eris.Errorf("invalid resolution %q (want claim_a, claim_b, both_valid, or needs_review)", conflictFlags.resolution)
		}

		st, err := initStoreOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		resolver := conflict.NewResolver(st, nil, cfg.Conflict)
		if err := resolver.Resolve(cmd.Context(), args[0], res, conflictFlags.notes, conflictFlags.resolvedBy); err != nil {
			return err
		}
		zap.L().Info("conflict resolved",
			zap.String("conflict_id", args[0]),
			zap.String("resolution", string(res)),
		)
		return nil
	},
}

var conflictsAutoCmd = &cobra.Command{
	Use:   "auto-resolve",
	Short: "Resolve a subject's conflicts whose suggestions clear the confidence floor",
	RunE: func(cmd *cobra.Command, args []string) error {
		if conflictFlags.subject == "" {
			return eris.New("--subject is required")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		resolved, err := env.Resolver.AutoResolve(cmd.Context(), conflictFlags.subject)
		if err != nil {
			return err
		}
		logCostTotals(env.Costs)
		fmt.Printf("%d conflicts auto-resolved\n", resolved)
		return nil
	},
}

func init() {
	conflictsCmd.PersistentFlags().StringVar(&conflictFlags.subject, "subject", "", "subject id")
	conflictsListCmd.Flags().BoolVar(&conflictFlags.includeResolved, "all", false, "include resolved conflicts")
	conflictsResolveCmd.Flags().StringVar(&conflictFlags.resolution, "resolution", "", "claim_a, claim_b, both_valid, or needs_review")
	conflictsResolveCmd.Flags().StringVar(&conflictFlags.notes, "notes", "", "free-text reviewer notes")
	conflictsResolveCmd.Flags().StringVar(&conflictFlags.resolvedBy, "by", "manual", "resolver identity")

	conflictsCmd.AddCommand(conflictsListCmd, conflictsDetectCmd, conflictsResolveCmd, conflictsAutoCmd)
	rootCmd.AddCommand(conflictsCmd)
}
