package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newMigrateCmd(env envFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := env()
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				db, err := openDatabase(cfg, log)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Best effort on exit

				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := env()
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				db, err := openDatabase(cfg, log)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Best effort on exit

				if err := db.MigrateDown(cmd.Context()); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "latest migration rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := env()
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				db, err := openDatabase(cfg, log)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Best effort on exit

				applied, pending, err := db.GetMigrationStatus(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT")
				for _, r := range applied {
					fmt.Fprintf(w, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
				}
				for _, m := range pending {
					fmt.Fprintf(w, "%s\tpending\t-\n", m.Version)
				}
				return nil
			},
		},
	)
	return cmd
}

func newSyncConfigCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-config",
		Short: "Insert declared site settings missing from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := env()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			c, err := openCore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer c.Close()

			inserted, err := c.settings.SyncAvailableConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("syncing site config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d site config entries added\n", inserted)
			return nil
		},
	}
}

func newReconcileCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one repair pass and print the report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := env()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			c, err := openCore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := c.reconciler.Run(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newProvisionCmd(env envFunc) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create new device pool entries and print their serials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := env()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			c, err := openCore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer c.Close()

			pools, err := c.assignment.Provision(cmd.Context(), count)
			for _, p := range pools {
				fmt.Fprintln(cmd.OutOrStdout(), p.Serial)
			}
			if err != nil {
				return fmt.Errorf("provisioned %d of %d: %w", len(pools), count, err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of pool entries to create")
	return cmd
}

func newUserLimitsCmd(env envFunc) *cobra.Command {
	var maxDevice, maxFence int
	var by string

	cmd := &cobra.Command{
		Use:   "user-limits <user-id>",
		Short: "Set a user's device and per-device geo fence limits (-1 uses the site default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := env()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			c, err := openCore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.assignment.UpdateUserLimits(cmd.Context(), by, args[0], maxDevice, maxFence)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(u)
		},
	}
	cmd.Flags().IntVar(&maxDevice, "max-device", -1, "devices the user may hold")
	cmd.Flags().IntVar(&maxFence, "max-fence", -1, "geo fences per device of this user")
	cmd.Flags().StringVar(&by, "by", "cli", "actor recorded in the log")
	return cmd
}
