package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/banshee-data/glitch.audit/internal/audit"
	"github.com/banshee-data/glitch.audit/internal/config"
	"github.com/banshee-data/glitch.audit/internal/pipeline"
	"github.com/banshee-data/glitch.audit/internal/store"
	"github.com/spf13/cobra"
)

type runFlags struct {
	seed            int64
	repoRoot        string
	embeddings      string
	metadata        string
	outputDir       string
	deepDive        []int
	skipInteractive bool
	skipFigures     bool
	noStore         bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full audit: project, cluster, rank and render",
		Long: `Run loads precomputed embeddings and their metadata, corrects labels from
the image directory layout, projects the embeddings onto a 2D manifold,
clusters it by density and ranks clusters by label ambiguity.

Result tables go to <output_dir>/outputs, figures to <output_dir>/figures and
one cluster_<id>_deep_dive directory per requested deep-dive cluster.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := applyRunFlags(cmd, *loaded, f)
			settings, err := cfg.Resolve()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAudit(runCtx, cmd, settings, f)
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&f.seed, "seed", 42, "Random seed for projection and sampling")
	flags.StringVar(&f.repoRoot, "repo-root", ".", "Root that relative paths are resolved against")
	flags.StringVar(&f.embeddings, "embeddings", "", "Embeddings file (.npy or .csv)")
	flags.StringVar(&f.metadata, "metadata", "", "Metadata CSV aligned with the embeddings")
	flags.StringVar(&f.outputDir, "output-dir", "", "Directory for tables and figures")
	flags.IntSliceVar(&f.deepDive, "deep-dive", nil, "Cluster ids to render contact sheets and intensity strips for")
	flags.BoolVar(&f.skipInteractive, "skip-interactive", false, "Skip the interactive HTML dashboard")
	flags.BoolVar(&f.skipFigures, "skip-figures", false, "Skip every figure")
	flags.BoolVar(&f.noStore, "no-store", false, "Do not record the run in the history database")
	return cmd
}

// applyRunFlags overlays explicitly set flags onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg config.AuditConfig, f runFlags) *config.AuditConfig {
	changed := cmd.Flags().Changed
	if changed("seed") {
		cfg.Seed = &f.seed
	}
	if changed("repo-root") {
		cfg.Paths.RepoRoot = &f.repoRoot
	}
	if changed("embeddings") {
		cfg.Paths.Embeddings = &f.embeddings
	}
	if changed("metadata") {
		cfg.Paths.Metadata = &f.metadata
	}
	if changed("output-dir") {
		cfg.Paths.OutputDir = &f.outputDir
	}
	if changed("deep-dive") {
		ids := append([]int{}, f.deepDive...)
		cfg.DeepDiveClusters = &ids
	}
	if changed("skip-interactive") {
		cfg.Visualization.SkipInteractive = &f.skipInteractive
	}
	if changed("skip-figures") {
		cfg.Visualization.Skip = &f.skipFigures
	}
	return &cfg
}

func runAudit(ctx context.Context, cmd *cobra.Command, s config.Settings, f runFlags) error {
	opts := pipeline.Options{}
	if dbPath := s.StorePath(); dbPath != "" && !f.noStore {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer st.Close()
		opts.Store = st
	}

	res, err := pipeline.Run(ctx, s, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, audit.SummaryReport(res.Summary, s.Analysis.TopN))
	fmt.Fprintf(out, "Run %s complete", res.RunID)
	if res.Warnings > 0 {
		fmt.Fprintf(out, " with %d warnings", res.Warnings)
	}
	fmt.Fprintf(out, ". Results saved to %s\n", s.Paths.Resolve().OutputDir)
	for _, p := range append(res.Outputs, res.Figures...) {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return nil
}
