package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"leadgen-platform/internal/pipeline"
	"leadgen-platform/internal/rbac"
	"leadgen-platform/migrations"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or list schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ctx, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			return migrations.Up(ctx, d.db, d.log)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ctx, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			return migrations.Down(ctx, d.db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ctx, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			list, err := migrations.List(ctx, d.db)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tSTATE\tPATH")
			for _, m := range list {
				state := "pending"
				if m.Applied {
					state = "applied"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, state, m.Path)
			}
			return w.Flush()
		},
	})

	return cmd
}

func recoverCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Settle campaigns stuck in active",
		Long: `Settle every campaign that has been active for longer than --older-than.

Each stuck campaign is charged for its unbilled leads and moved to
completed when its lead quota is met, otherwise to paused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ctx, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			if olderThan <= 0 {
				olderThan = d.cfg.Pipeline.StuckAfter
			}
			n, err := d.pipeline.RecoverStuck(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d campaign(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum time active before a campaign counts as stuck (default PIPELINE_STUCK_AFTER)")
	return cmd
}

func campaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Campaign maintenance",
	}

	var owner string
	reset := &cobra.Command{
		Use:   "reset [campaign-id]",
		Short: "Move an active or paused campaign back to draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ctx, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			c, err := d.pipeline.ResetCampaign(ctx, pipeline.Actor{UserID: owner, Role: rbac.RoleAdmin, IP: "leadctl"}, args[0])
			if err != nil {
				return fmt.Errorf("reset %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "campaign %s is now %s (%d leads kept)\n", c.ID, c.Status, c.LeadsScraped)
			return nil
		},
	}
	reset.Flags().StringVar(&owner, "user", "", "id of the user who owns the campaign")
	_ = reset.MarkFlagRequired("user")
	cmd.AddCommand(reset)

	return cmd
}

func creditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Credit ledger operations",
	}

	var (
		userID string
		amount int64
		key    string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add credits to a user's balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ctx, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.store.EnsureUser(ctx, userID, "", time.Now().UTC()); err != nil {
				return err
			}
			_, acct, err := d.billing.TopUp(ctx, userID, amount, key)
			if err != nil {
				return fmt.Errorf("top up %s: %w", userID, err)
			}
			d.audit.LogTopUp(ctx, userID, rbac.RoleAdmin, "leadctl", amount, acct.Credits)
			fmt.Fprintf(cmd.OutOrStdout(), "user %s balance: %d credits\n", userID, acct.Credits)
			return nil
		},
	}
	add.Flags().StringVar(&userID, "user", "", "user id")
	add.Flags().Int64Var(&amount, "amount", 0, "credits to add")
	add.Flags().StringVar(&key, "idempotency-key", "", "repeat-safe key; the same key credits once")
	_ = add.MarkFlagRequired("user")
	_ = add.MarkFlagRequired("amount")
	cmd.AddCommand(add)

	return cmd
}
