package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var authorityNotes string

var authorityCmd = &cobra.Command{
	Use:   "authority",
	Short: "Manage source authority tiers",
	Long:  "Maps provenance domains to trust tiers 1 (most authoritative) through 4 (least). Unrated domains default to tier 3.",
}

var authoritySetCmd = &cobra.Command{
	Use:   "set <domain> <tier>",
	Short: "Rate a domain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := strconv.Atoi(args[1])
		if err != nil || tier < 1 || tier > 4 {
			return eris.Errorf("invalid tier %q (want 1-4)", args[1])
		}

		st, err := initStoreOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.UpsertAuthority(cmd.Context(), args[0], tier, authorityNotes); err != nil {
			return err
		}
		zap.L().Info("authority updated", zap.String("domain", args[0]), zap.Int("tier", tier))
		return nil
	},
}

var authorityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rated domains by tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStoreOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		authorities, err := st.ListAuthorities(cmd.Context())
		if err != nil {
			return err
		}
		if len(authorities) == 0 {
			fmt.Println("no rated domains")
			return nil
		}
		for _, a := range authorities {
			fmt.Printf("tier %d  %s", a.Tier, a.Domain)
			if a.Notes != "" {
				fmt.Printf("  (%s)", a.Notes)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	authoritySetCmd.Flags().StringVar(&authorityNotes, "notes", "", "why this domain earned its tier")
	authorityCmd.AddCommand(authoritySetCmd, authorityListCmd)
	rootCmd.AddCommand(authorityCmd)
}
