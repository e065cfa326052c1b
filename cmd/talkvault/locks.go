package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/talkvault/talkvault/app"
)

func locksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and clear advisory locks",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List held locks",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := loadConfig()
				if err != nil {
					return err
				}
				stores, err := app.OpenStores(cmd.Context(), cfg, log)
				if err != nil {
					return err
				}
				defer stores.Close()

				locks, err := stores.Locks.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(locks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no locks held")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tACQUIRED")
				for _, l := range locks {
					fmt.Fprintf(w, "%s\t%s\n", l.Name, l.CreatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "release-all",
			Short: "Release every held lock, e.g. after a crash left one behind",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := loadConfig()
				if err != nil {
					return err
				}
				stores, err := app.OpenStores(cmd.Context(), cfg, log)
				if err != nil {
					return err
				}
				defer stores.Close()

				n, err := stores.Locks.ReleaseAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released %d lock(s)\n", n)
				return nil
			},
		},
	)
	return cmd
}
