package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/banshee-data/glitch.audit/internal/audit"
	"github.com/banshee-data/glitch.audit/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		dbPath string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded audit runs",
		Long:  "History lists recorded runs, newest first. With --run it prints the ranked cluster statistics of one run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dbPath
			if path == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				settings, err := cfg.Resolve()
				if err != nil {
					return err
				}
				path = settings.StorePath()
			}
			if path == "" {
				return errors.New("run history is disabled (store.path is empty); pass --db")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("run history %s: %w", path, err)
			}

			st, err := store.Open(path)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				rec, err := st.GetRun(cmd.Context(), runID)
				if err != nil {
					return err
				}
				stats, err := st.GetClusterStats(cmd.Context(), runID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s (%s)\n", rec.RunID, rec.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "Projection: %s\nClustering: %s\n", rec.Projection, rec.Clustering)
				fmt.Fprintln(out, audit.StatsTable(stats, tableStyle(out)))
				return nil
			}

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, runsTable(runs, tableStyle(out)))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&dbPath, "db", "", "Run history database (default: store.path from the config)")
	cmd.Flags().StringVar(&runID, "run", "", "Show the cluster statistics of one run")
	return cmd
}

func runsTable(runs []*store.RunRecord, style table.Style) string {
	tw := table.NewWriter()
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"Run", "Created", "Samples", "Clusters", "Noise", "Labels", "Over-split", "Over-comp", "Clustering"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.RunID,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Samples,
			r.Clusters,
			fmt.Sprintf("%d (%.1f%%)", r.Noise, 100*r.NoiseFraction),
			r.UniqueLabels,
			strconv.Itoa(len(r.OverSplitting)),
			strconv.Itoa(len(r.OverCompression)),
			r.Clustering,
		})
	}
	return tw.Render()
}
