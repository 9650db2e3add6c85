// Package pipeline runs one label audit end to end.
//
// It is the composition root: it wires dataset loading, the manifold
// projector, the density clusterer, the audit metrics, the result tables,
// the run history and the figures into one pass. None of those packages
// import pipeline. Each stage consumes the previous stage's value and
// produces a new one; nothing is mutated in place.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/glitch.audit/internal/audit"
	"github.com/banshee-data/glitch.audit/internal/config"
	"github.com/banshee-data/glitch.audit/internal/dataset"
	"github.com/banshee-data/glitch.audit/internal/density"
	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/manifold"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/banshee-data/glitch.audit/internal/report"
	"github.com/banshee-data/glitch.audit/internal/store"
	"github.com/banshee-data/glitch.audit/internal/timeutil"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Options supplies the collaborators of a run. Zero values select the
// production defaults.
type Options struct {
	FS        fsutil.FileSystem  // nil: the OS filesystem
	Projector manifold.Projector // nil: built from settings
	Clusterer density.Clusterer  // nil: built from settings
	Store     *store.Store       // nil: the run is not recorded; Run never closes it

	SkipFigures     bool // in addition to settings.Visualization.Skip
	SkipInteractive bool // in addition to settings.Visualization.SkipInteractive

	Clock timeutil.Clock // nil: the real clock
}

// AssignedSample is a sample with its manifold position and cluster.
type AssignedSample struct {
	dataset.Sample
	X, Y        float64
	ClusterID   int
	Probability float64
}

// Row converts the sample into a row of the enriched sample table.
func (a AssignedSample) Row() report.Row {
	return report.Row{
		ID:             a.ID,
		Path:           a.Path,
		Label:          a.Label,
		RawLabel:       a.RawLabel,
		Interferometer: a.Interferometer,
		X:              a.X,
		Y:              a.Y,
		ClusterID:      a.ClusterID,
		Probability:    a.Probability,
	}
}

// Result is everything one run produced. Cluster ids are only meaningful
// within this Result.
type Result struct {
	RunID     string
	Assigned  []AssignedSample
	Stats     []audit.ClusterStats // by cluster id
	Ranked    []audit.ClusterStats // by ambiguity, descending
	Modes     audit.FailureModes
	Summary   audit.Summary
	PathCheck dataset.PathCheck
	Outputs   []string // result tables
	Figures   []string
	Skipped   []int // deep-dive ids absent from this clustering
	Warnings  int
	Stages    []timeutil.StageDuration
}

// Run executes the audit described by s. Input validation problems abort the
// run; unreadable images and missing deep-dive clusters only warn.
func Run(ctx context.Context, s config.Settings, opts Options) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	stages := timeutil.NewStages(clock)
	startedAt := clock.Now()
	paths := s.Paths.Resolve()
	monitoring.ResetWarnings()

	unlock, err := lockOutputDir(fsys, paths.OutputDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	runID := uuid.New().String()
	monitoring.Logf("[run] %s: embeddings=%s metadata=%s output=%s seed=%d", runID, paths.Embeddings, paths.Metadata, paths.OutputDir, s.Seed)

	stop := stages.Start("load")
	c, err := prepare(fsys, paths, s)
	if err != nil {
		return nil, err
	}
	check := dataset.ValidateImagePaths(fsys, c, s.Analysis.PathCheckSample, s.Seed)
	stop()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop = stages.Start("project")
	coords, err := project(ctx, c, s, opts.Projector)
	if err != nil {
		return nil, err
	}
	stop()

	stop = stages.Start("cluster")
	clustered, err := cluster(coords, s, opts.Clusterer)
	if err != nil {
		return nil, err
	}
	stop()

	res := &Result{RunID: runID, PathCheck: check}
	res.Assigned = assign(c, coords, clustered)

	assignments := make([]audit.Assignment, len(res.Assigned))
	rows := make([]report.Row, len(res.Assigned))
	for i, a := range res.Assigned {
		assignments[i] = audit.Assignment{ClusterID: a.ClusterID, Label: a.Label}
		rows[i] = a.Row()
	}

	stop = stages.Start("analysis")
	monitoring.Logf("[analysis] computing cluster statistics...")
	res.Stats = audit.ComputeClusterStats(assignments)
	res.Ranked = audit.RankByAmbiguity(res.Stats)
	res.Modes = audit.IdentifyFailureModes(res.Stats, s.Analysis.EntropyThreshold, s.Analysis.PurityThreshold)
	res.Summary = audit.Summarize(assignments, res.Ranked, res.Modes, s.Analysis.EntropyThreshold, s.Analysis.PurityThreshold)
	monitoring.Logf("[analysis] %d clusters, %d over-splitting, %d over-compression",
		len(res.Stats), len(res.Modes.OverSplitting), len(res.Modes.OverCompression))
	monitoring.Logf("[analysis] summary:\n%s", audit.SummaryReport(res.Summary, s.Analysis.TopN))

	res.Outputs, err = report.Save(fsys, paths.OutputsDir(), report.Tables{
		Rows:    rows,
		Stats:   res.Stats,
		Ranked:  res.Ranked,
		Summary: res.Summary,
		TopN:    s.Analysis.TopN,
	})
	if err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}
	stop()

	if opts.Store != nil {
		if err := record(ctx, opts.Store, runID, startedAt, s, res); err != nil {
			return nil, err
		}
	}

	if !s.Visualization.Skip && !opts.SkipFigures {
		fig := figureJob{
			fsys:            fsys,
			paths:           paths,
			settings:        s,
			rows:            rows,
			assignments:     assignments,
			skipInteractive: s.Visualization.SkipInteractive || opts.SkipInteractive,
		}
		stop = stages.Start("figures")
		res.Figures, res.Skipped, err = fig.render(ctx)
		if err != nil {
			return nil, fmt.Errorf("figures: %w", err)
		}
		stop()
	}

	res.Warnings = monitoring.Warnings()
	res.Stages = stages.Durations()
	monitoring.Logf("[run] %s complete in %s: %d outputs, %d figures, %d warnings",
		runID, clock.Since(startedAt).Round(time.Millisecond), len(res.Outputs), len(res.Figures), res.Warnings)
	return res, nil
}

// prepare loads the inputs and applies label correction and filtering.
func prepare(fsys fsutil.FileSystem, paths config.Paths, s config.Settings) (*dataset.Collection, error) {
	c, err := dataset.Load(fsys, paths.Embeddings, paths.Metadata)
	if err != nil {
		return nil, err
	}
	c, err = dataset.CorrectLabels(c)
	if err != nil {
		return nil, fmt.Errorf("correct labels: %w", err)
	}
	if s.Analysis.MinLabelCount > 1 || s.Analysis.DropUnknown {
		before := c.Len()
		c, err = dataset.FilterValid(c, s.Analysis.MinLabelCount, s.Analysis.DropUnknown)
		if err != nil {
			return nil, fmt.Errorf("filter labels: %w", err)
		}
		monitoring.Logf("[preprocess] kept %d of %d samples after filtering", c.Len(), before)
	}
	return c, nil
}

func project(ctx context.Context, c *dataset.Collection, s config.Settings, p manifold.Projector) (*mat.Dense, error) {
	if p == nil {
		var err error
		if p, err = manifold.New(s.Projection, s.Seed); err != nil {
			return nil, err
		}
	}
	monitoring.Logf("[%s] projecting %d×%d embeddings: %s", s.Projection.Method, c.Len(), c.Dim(), describeProjection(s.Projection))
	coords, err := p.Project(ctx, c.Embeddings())
	if err != nil {
		return nil, fmt.Errorf("project embeddings: %w", err)
	}
	if r, cols := coords.Dims(); r != c.Len() || cols != config.RequiredComponents {
		return nil, fmt.Errorf("projector returned %d×%d coordinates for %d samples", r, cols, c.Len())
	}
	monitoring.Logf("[%s] extent %s", s.Projection.Method, manifold.Extent(coords))
	return coords, nil
}

func cluster(coords *mat.Dense, s config.Settings, cl density.Clusterer) (density.Result, error) {
	if cl == nil {
		var err error
		if cl, err = density.New(s.Clustering); err != nil {
			return density.Result{}, err
		}
	}
	monitoring.Logf("[%s] clustering: %s", s.Clustering.Algorithm, describeClustering(s.Clustering))
	res, err := cl.Cluster(coords)
	if err != nil {
		return density.Result{}, fmt.Errorf("cluster coordinates: %w", err)
	}
	n, _ := coords.Dims()
	if len(res.Labels) != n {
		return density.Result{}, fmt.Errorf("clusterer returned %d labels for %d points", len(res.Labels), n)
	}
	sum := density.Summarize(res.Labels)
	monitoring.Logf("[%s] found %d clusters, noise: %d (%.1f%%)", s.Clustering.Algorithm, sum.Clusters, sum.Noise, 100*sum.NoiseFraction)
	return res, nil
}

// assign joins samples, coordinates and cluster labels row by row.
func assign(c *dataset.Collection, coords *mat.Dense, res density.Result) []AssignedSample {
	out := make([]AssignedSample, c.Len())
	for i := range out {
		out[i] = AssignedSample{
			Sample:    c.Sample(i),
			X:         coords.At(i, 0),
			Y:         coords.At(i, 1),
			ClusterID: res.Labels[i],
		}
		if i < len(res.Probabilities) {
			out[i].Probability = res.Probabilities[i]
		}
	}
	return out
}

func record(ctx context.Context, st *store.Store, runID string, at time.Time, s config.Settings, res *Result) error {
	settingsTOML, err := s.AuditConfig().Marshal()
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	rec := store.RunRecord{
		RunID:            runID,
		CreatedAt:        at,
		Seed:             s.Seed,
		Samples:          res.Summary.TotalSamples,
		Clusters:         res.Summary.Clusters,
		Noise:            res.Summary.NoiseSamples,
		NoiseFraction:    res.Summary.NoiseFraction,
		UniqueLabels:     res.Summary.UniqueLabels,
		Projection:       describeProjection(s.Projection),
		Clustering:       describeClustering(s.Clustering),
		EntropyThreshold: s.Analysis.EntropyThreshold,
		PurityThreshold:  s.Analysis.PurityThreshold,
		OverSplitting:    res.Modes.OverSplitting,
		OverCompression:  res.Modes.OverCompression,
		SettingsTOML:     string(settingsTOML),
	}
	if _, err := st.RecordRun(ctx, rec, res.Ranked); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	monitoring.Logf("[store] recorded run %s", runID)
	return nil
}

func describeProjection(p config.Projection) string {
	if p.Method == config.ProjectionTSNE {
		return fmt.Sprintf("tsne %s perplexity=%g learning_rate=%g iterations=%d", p.Metric, p.Perplexity, p.LearningRate, p.Iterations)
	}
	return fmt.Sprintf("umap %s n_neighbors=%d min_dist=%g init=%s", p.Metric, p.NNeighbors, p.MinDist, p.Init)
}

func describeClustering(c config.Clustering) string {
	if c.Algorithm == config.ClusterDBSCAN {
		return fmt.Sprintf("dbscan eps=%g min_samples=%d", c.Eps, c.MinSamples)
	}
	return fmt.Sprintf("hdbscan %s min_cluster_size=%d min_samples=%d", c.Selection, c.MinClusterSize, c.MinSamples)
}
