package config

import (
	"fmt"
	"path/filepath"
)

// Projection methods.
const (
	ProjectionUMAP = "umap"
	ProjectionTSNE = "tsne"
)

// Distance metrics.
const (
	MetricCosine      = "cosine"
	MetricEuclidean   = "euclidean"
	MetricManhattan   = "manhattan"
	MetricCorrelation = "correlation"
)

// Layout initialisations for UMAP.
const (
	InitPCA    = "pca"
	InitRandom = "random"
)

// Clustering algorithms.
const (
	ClusterHDBSCAN = "hdbscan"
	ClusterDBSCAN  = "dbscan"
)

// Cluster selection methods. Excess-of-mass favours fewer, larger, more
// stable clusters; leaf favours many small fine-grained ones.
const (
	SelectionEOM  = "eom"
	SelectionLeaf = "leaf"
)

// RequiredComponents is the only supported projection dimensionality.
// Clustering and every figure operate on a 2D manifold.
const RequiredComponents = 2

// Settings is the validated configuration handed to each stage. It is a plain
// value: stages receive copies and never write back.
type Settings struct {
	Seed             int64
	DeepDiveClusters []int

	Paths         Paths
	Projection    Projection
	Clustering    Clustering
	Analysis      Analysis
	Visualization Visualization
	Store         Store
}

// Paths locates inputs and outputs.
type Paths struct {
	RepoRoot   string
	Embeddings string
	Metadata   string
	OutputDir  string
}

// Projection configures the manifold projector.
type Projection struct {
	Method       string
	NNeighbors   int
	MinDist      float64
	Metric       string
	NComponents  int
	Init         string
	NEpochs      int
	Perplexity   float64
	LearningRate float64
	Iterations   int
}

// Clustering configures the density clusterer. MinSamples is already
// resolved to MinClusterSize when it was unset.
type Clustering struct {
	Algorithm      string
	MinClusterSize int
	MinSamples     int
	Metric         string
	Selection      string
	Eps            float64
}

// Analysis holds the failure-mode policy.
type Analysis struct {
	EntropyThreshold float64
	PurityThreshold  float64
	TopN             int
	MinLabelCount    int
	DropUnknown      bool
	PathCheckSample  int
}

// Visualization holds figure settings.
type Visualization struct {
	Skip                bool
	SkipInteractive     bool
	TopKLabels          int
	SamplesPerLabel     int
	ScatterSampleSize   int
	PointSize           int
	FigureDPI           int
	StripMaxPanels      int
	DashboardSampleSize int
	HoverImageSize      int
}

// Store configures the run-history database.
type Store struct {
	Path string
}

// Defaults returns the default Settings.
func Defaults() Settings {
	s, err := EmptyAuditConfig().Resolve()
	if err != nil {
		panic("default configuration is invalid: " + err.Error())
	}
	return s
}

// Validate checks every value. It is the single validation routine: file
// loading, Resolve and the pipeline entry point all go through it.
func (s Settings) Validate() error {
	if err := s.Projection.Validate(); err != nil {
		return err
	}
	if err := s.Clustering.Validate(); err != nil {
		return err
	}
	if err := s.Analysis.Validate(); err != nil {
		return err
	}
	if err := s.Visualization.Validate(); err != nil {
		return err
	}
	if s.Paths.Embeddings == "" || s.Paths.Metadata == "" || s.Paths.OutputDir == "" {
		return invalidf("embeddings, metadata and output_dir paths must be set")
	}
	return nil
}

// Validate checks the projection settings.
func (p Projection) Validate() error {
	if p.Method != ProjectionUMAP && p.Method != ProjectionTSNE {
		return invalidf("projection method must be one of %s, %s; got %q", ProjectionUMAP, ProjectionTSNE, p.Method)
	}
	if p.NComponents != RequiredComponents {
		return invalidf("n_components must be %d for clustering and visualization, got %d", RequiredComponents, p.NComponents)
	}
	if p.NNeighbors < 2 {
		return invalidf("n_neighbors must be at least 2, got %d", p.NNeighbors)
	}
	if p.MinDist < 0 || p.MinDist >= 1 {
		return invalidf("min_dist must be in [0, 1), got %g", p.MinDist)
	}
	switch p.Metric {
	case MetricCosine, MetricEuclidean, MetricManhattan, MetricCorrelation:
	default:
		return invalidf("unknown projection metric %q", p.Metric)
	}
	if p.Init != InitPCA && p.Init != InitRandom {
		return invalidf("init must be one of %s, %s; got %q", InitPCA, InitRandom, p.Init)
	}
	if p.NEpochs < 0 {
		return invalidf("n_epochs must be non-negative, got %d", p.NEpochs)
	}
	if p.Method == ProjectionTSNE {
		if p.Metric == MetricManhattan {
			return invalidf("tsne supports %s, %s and %s metrics, got %q", MetricCosine, MetricEuclidean, MetricCorrelation, p.Metric)
		}
		if p.Perplexity <= 0 {
			return invalidf("perplexity must be positive, got %g", p.Perplexity)
		}
		if p.LearningRate <= 0 {
			return invalidf("learning_rate must be positive, got %g", p.LearningRate)
		}
		if p.Iterations < 1 {
			return invalidf("iterations must be at least 1, got %d", p.Iterations)
		}
	}
	return nil
}

// Validate checks the clustering settings.
func (c Clustering) Validate() error {
	if c.Algorithm != ClusterHDBSCAN && c.Algorithm != ClusterDBSCAN {
		return invalidf("clustering algorithm must be one of %s, %s; got %q", ClusterHDBSCAN, ClusterDBSCAN, c.Algorithm)
	}
	if c.MinClusterSize < 2 {
		return invalidf("min_cluster_size must be >= 2, got %d", c.MinClusterSize)
	}
	if c.MinSamples < 1 {
		return invalidf("min_samples must be >= 1, got %d", c.MinSamples)
	}
	if c.Metric != MetricEuclidean {
		return invalidf("clustering runs on the 2D manifold and supports only %q, got %q", MetricEuclidean, c.Metric)
	}
	if c.Selection != SelectionEOM && c.Selection != SelectionLeaf {
		return invalidf("cluster_selection_method must be one of %s, %s; got %q", SelectionEOM, SelectionLeaf, c.Selection)
	}
	if c.Algorithm == ClusterDBSCAN && c.Eps <= 0 {
		return invalidf("eps must be positive, got %g", c.Eps)
	}
	return nil
}

// Validate checks the analysis settings.
func (a Analysis) Validate() error {
	if a.EntropyThreshold < 0 {
		return invalidf("entropy_threshold must be non-negative, got %g", a.EntropyThreshold)
	}
	if a.PurityThreshold < 0 || a.PurityThreshold > 1 {
		return invalidf("purity_threshold must be in [0, 1], got %g", a.PurityThreshold)
	}
	if a.TopN < 1 {
		return invalidf("top_n must be at least 1, got %d", a.TopN)
	}
	if a.MinLabelCount < 0 {
		return invalidf("min_label_count must be non-negative, got %d", a.MinLabelCount)
	}
	if a.PathCheckSample < 0 {
		return invalidf("path_check_sample must be non-negative, got %d", a.PathCheckSample)
	}
	return nil
}

// Validate checks the visualization settings.
func (v Visualization) Validate() error {
	sizes := []struct {
		name  string
		value int
	}{
		{"top_k_labels", v.TopKLabels},
		{"samples_per_label", v.SamplesPerLabel},
		{"scatter_sample_size", v.ScatterSampleSize},
		{"point_size", v.PointSize},
		{"figure_dpi", v.FigureDPI},
		{"strip_max_panels", v.StripMaxPanels},
		{"dashboard_sample_size", v.DashboardSampleSize},
		{"hover_image_size", v.HoverImageSize},
	}
	for _, s := range sizes {
		if s.value < 1 {
			return invalidf("%s must be positive, got %d", s.name, s.value)
		}
	}
	return nil
}

// Resolve returns a copy of p with relative paths joined onto RepoRoot.
func (p Paths) Resolve() Paths {
	join := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(p.RepoRoot, path)
	}
	return Paths{
		RepoRoot:   p.RepoRoot,
		Embeddings: join(p.Embeddings),
		Metadata:   join(p.Metadata),
		OutputDir:  join(p.OutputDir),
	}
}

// OutputsDir is where result tables are written.
func (p Paths) OutputsDir() string {
	return filepath.Join(p.OutputDir, "outputs")
}

// FiguresDir is where figures are written.
func (p Paths) FiguresDir() string {
	return filepath.Join(p.OutputDir, "figures")
}

// StorePath resolves the database path against RepoRoot. Empty stays empty.
func (s Settings) StorePath() string {
	if s.Store.Path == "" || filepath.IsAbs(s.Store.Path) {
		return s.Store.Path
	}
	return filepath.Join(s.Paths.RepoRoot, s.Store.Path)
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...)
}

// AuditConfig returns a fully populated file form of s. Marshalling it
// yields a TOML file that resolves back to s.
func (s Settings) AuditConfig() *AuditConfig {
	p, c, a, v := s.Projection, s.Clustering, s.Analysis, s.Visualization
	return &AuditConfig{
		Seed:             ptrInt64(s.Seed),
		DeepDiveClusters: ptrInts(s.DeepDiveClusters),
		Paths: PathsConfig{
			RepoRoot:   ptrString(s.Paths.RepoRoot),
			Embeddings: ptrString(s.Paths.Embeddings),
			Metadata:   ptrString(s.Paths.Metadata),
			OutputDir:  ptrString(s.Paths.OutputDir),
		},
		Projection: ProjectionConfig{
			Method:       ptrString(p.Method),
			NNeighbors:   ptrInt(p.NNeighbors),
			MinDist:      ptrFloat64(p.MinDist),
			Metric:       ptrString(p.Metric),
			NComponents:  ptrInt(p.NComponents),
			Init:         ptrString(p.Init),
			NEpochs:      ptrInt(p.NEpochs),
			Perplexity:   ptrFloat64(p.Perplexity),
			LearningRate: ptrFloat64(p.LearningRate),
			Iterations:   ptrInt(p.Iterations),
		},
		Clustering: ClusteringConfig{
			Algorithm:      ptrString(c.Algorithm),
			MinClusterSize: ptrInt(c.MinClusterSize),
			MinSamples:     ptrInt(c.MinSamples),
			Metric:         ptrString(c.Metric),
			Selection:      ptrString(c.Selection),
			Eps:            ptrFloat64(c.Eps),
		},
		Analysis: AnalysisConfig{
			EntropyThreshold: ptrFloat64(a.EntropyThreshold),
			PurityThreshold:  ptrFloat64(a.PurityThreshold),
			TopN:             ptrInt(a.TopN),
			MinLabelCount:    ptrInt(a.MinLabelCount),
			DropUnknown:      ptrBool(a.DropUnknown),
			PathCheckSample:  ptrInt(a.PathCheckSample),
		},
		Visualization: VisualizationConfig{
			Skip:                ptrBool(v.Skip),
			SkipInteractive:     ptrBool(v.SkipInteractive),
			TopKLabels:          ptrInt(v.TopKLabels),
			SamplesPerLabel:     ptrInt(v.SamplesPerLabel),
			ScatterSampleSize:   ptrInt(v.ScatterSampleSize),
			PointSize:           ptrInt(v.PointSize),
			FigureDPI:           ptrInt(v.FigureDPI),
			StripMaxPanels:      ptrInt(v.StripMaxPanels),
			DashboardSampleSize: ptrInt(v.DashboardSampleSize),
			HoverImageSize:      ptrInt(v.HoverImageSize),
		},
		Store: StoreConfig{Path: ptrString(s.Store.Path)},
	}
}
