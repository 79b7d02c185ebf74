// Package cli implements recoveryctl, the operator tool for inspecting and
// repairing accounts directly against the configured store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/recoverly/recoverly/internal/app"
	"github.com/recoverly/recoverly/internal/badge"
	"github.com/recoverly/recoverly/internal/cascade"
	"github.com/recoverly/recoverly/internal/observer"
)

// Opener builds the application the commands run against.
type Opener func(ctx context.Context) (*app.App, error)

// NewRootCommand assembles the recoveryctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "recoveryctl",
		Short:         "Inspect and repair Recoverly progress ledgers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(accountCommand(open), contractCommand(open), badgesCommand(), watchCommand(open))
	return root
}

// ─── account ────────────────────────────────────────────────────────────────

func accountCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show, reconcile or restart an account",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show ACCOUNT_ID",
			Short: "Print the stored account without reconciling it",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(open, func(cmd *cobra.Command, a *app.App, id string) error {
				v, err := a.Observer.View(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			}),
		},
		&cobra.Command{
			Use:   "reconcile ACCOUNT_ID",
			Short: "Reconcile the badge tier and settle an expired contract",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(open, func(cmd *cobra.Command, a *app.App, id string) error {
				v, err := a.Observer.Observe(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			}),
		},
		&cobra.Command{
			Use:   "restart ACCOUNT_ID",
			Short: "Reset the streak, badge and any active contract",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(open, func(cmd *cobra.Command, a *app.App, id string) error {
				res, err := a.Cascade.Reset(cmd.Context(), id, cascade.TriggerRestart)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}),
		},
	)
	return cmd
}

// ─── contract ───────────────────────────────────────────────────────────────

func contractCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Inspect or settle commitment contracts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status ACCOUNT_ID",
			Short: "Print the contract state",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(open, func(cmd *cobra.Command, a *app.App, id string) error {
				st, err := a.Contracts.Status(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			}),
		},
		&cobra.Command{
			Use:   "evaluate ACCOUNT_ID",
			Short: "Settle the contract if it has expired",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(open, func(cmd *cobra.Command, a *app.App, id string) error {
				ev, err := a.Contracts.Evaluate(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ev)
			}),
		},
	)
	return cmd
}

// ─── badges ─────────────────────────────────────────────────────────────────

func badgesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badges",
		Short: "Work with the badge tier catalog",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List tiers, validating a catalog file when --file is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("file")
			catalog := badge.DefaultCatalog()
			if path != "" {
				var err error
				if catalog, err = badge.LoadCatalog(path); err != nil {
					return err
				}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMIN DAYS\tTITLE")
			for _, t := range catalog.Tiers() {
				fmt.Fprintf(w, "%s\t%d\t%s\n", t.ID, t.MinDays, t.Title)
			}
			return w.Flush()
		},
	}
	list.Flags().StringP("file", "f", "", "TOML catalog file of [[tier]] tables")
	cmd.AddCommand(list)
	return cmd
}

// ─── watch ──────────────────────────────────────────────────────────────────

func watchCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ACCOUNT_ID",
		Short: "Follow an account on the change feed, one JSON line per snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, a *app.App, id string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			return a.Observer.Watch(cmd.Context(), id, func(v observer.View) error {
				return enc.Encode(v)
			})
		}),
	}
}

func withApp(open Opener, run func(cmd *cobra.Command, a *app.App, id string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args[0])
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
