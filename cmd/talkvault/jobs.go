package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/talkvault/talkvault/app"
	"github.com/talkvault/talkvault/internal/state"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect persisted jobs",
	}

	var (
		status   string
		page     int
		pageSize int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := state.JobStatus(status)
			if status != "" && !filter.IsValid() {
				return fmt.Errorf("unknown status %q", status)
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer stores.Close()

			result, err := stores.Jobs.GetAll(cmd.Context(), page, pageSize, filter)
			if err != nil {
				return err
			}
			counts, err := stores.Jobs.CountAllJobsGroupedByStatus(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tSTARTED\tCREATED")
			for _, j := range result.Items {
				started := "-"
				if j.StartedAt != nil {
					started = j.StartedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%s\t%s\n", j.ID, j.Name, j.Status, j.Progress, started, j.CreatedAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\npage %d/%d, %d job(s)", result.Page, result.TotalPages, result.TotalItems)
			for _, s := range state.AllStatuses {
				fmt.Fprintf(cmd.OutOrStdout(), ", %s=%d", s, counts[s])
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "only jobs in this status (waiting, active, completed, failed)")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&pageSize, "size", 20, "jobs per page")

	cmd.AddCommand(list)
	return cmd
}
