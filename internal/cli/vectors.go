package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Knowmad79/Docbox2026/internal/service/shadow"
)

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the configured store's schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := e.openStore(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			store.Close(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date (%s)\n",
				color.New(color.FgGreen).Sprint("✓"), e.storeConfig().Kind())
			return nil
		},
	}
}

func sweepCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Flag open vectors whose deadline has passed",
		Long: `Run one overdue sweep, the same pass the server runs every
DOCBOX_OVERDUE_SWEEP_INTERVAL. Vectors that left NEW/ASSIGNED lose the flag.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context())

			marked, cleared, err := e.shadowService(store).SweepOverdue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d overdue, cleared %d\n", marked, cleared)
			return nil
		},
	}
}

func deckCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deck",
		Short: "List a role's open vectors, riskiest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, _ := cmd.Flags().GetString("role")
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context())

			deck, err := e.shadowService(store).DailyDeck(cmd.Context(), role, limit)
			if err != nil {
				return fmt.Errorf("failed to load deck: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(deck) == 0 {
				fmt.Fprintf(out, "No open vectors for %s\n", role)
				return nil
			}

			overdue := color.New(color.FgRed).Sprint("OVERDUE")
			fmt.Fprintf(out, "\n%-36s %-10s %-5s %-9s %-16s %s\n", "ID", "INTENT", "RISK", "STATE", "DEADLINE", "SUMMARY")
			fmt.Fprintln(out, strings.Repeat("─", 100))
			for _, v := range deck {
				deadline := v.DeadlineAt.Local().Format("2006-01-02 15:04")
				if v.IsOverdue {
					deadline = overdue
				}
				fmt.Fprintf(out, "%-36s %-10s %-5.2f %-9s %-16s %s\n",
					v.ID, v.IntentLabel, v.RiskScore, v.LifecycleState, deadline, v.Summary)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringP("role", "r", string(shadow.DefaultDeckRole), "Owner role")
	cmd.Flags().IntP("limit", "n", shadow.DefaultDeckLimit, fmt.Sprintf("Maximum vectors (at most %d)", shadow.MaxDeckLimit))
	return cmd
}

func transitionCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition [vector-id] [state]",
		Short: "Move a vector to a new lifecycle state",
		Long: `Move a vector along the lifecycle:

  NEW       -> ASSIGNED, RESOLVED, ARCHIVED
  ASSIGNED  -> RESOLVED, ESCALATED, ARCHIVED
  ESCALATED -> RESOLVED, ARCHIVED
  RESOLVED  -> ARCHIVED, NEW
  ARCHIVED  -> NEW

Every change is recorded as a STATE_CHANGE event naming the actor.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid vector id %q", args[0])
			}
			actor, _ := cmd.Flags().GetString("actor")

			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context())

			v, err := e.shadowService(store).Transition(cmd.Context(), id, args[1], actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is now %s (updated %s)\n",
				color.New(color.FgGreen).Sprint("✓"), v.ID, v.LifecycleState,
				v.UpdatedAt.Local().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringP("actor", "a", "docboxctl", "Actor recorded on the state change event")
	return cmd
}
