package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigPath is the path to the canonical audit defaults file.
const DefaultConfigPath = "config/audit.defaults.toml"

// ErrInvalidConfig marks every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// AuditConfig is the on-disk shape of the audit configuration. Every field is
// optional: nil pointers fall back to the defaults returned by the Get*
// accessors, so partial files are safe.
type AuditConfig struct {
	Seed             *int64 `toml:"seed,omitempty"`
	DeepDiveClusters *[]int `toml:"deep_dive_clusters,omitempty"`

	Paths         PathsConfig         `toml:"paths"`
	Projection    ProjectionConfig    `toml:"projection"`
	Clustering    ClusteringConfig    `toml:"clustering"`
	Analysis      AnalysisConfig      `toml:"analysis"`
	Visualization VisualizationConfig `toml:"visualization"`
	Store         StoreConfig         `toml:"store"`
}

// PathsConfig locates inputs and outputs, relative to RepoRoot unless absolute.
type PathsConfig struct {
	RepoRoot   *string `toml:"repo_root,omitempty"`
	Embeddings *string `toml:"embeddings,omitempty"`
	Metadata   *string `toml:"metadata,omitempty"`
	OutputDir  *string `toml:"output_dir,omitempty"`
}

// ProjectionConfig configures the manifold projector.
type ProjectionConfig struct {
	Method       *string  `toml:"method,omitempty"` // umap | tsne
	NNeighbors   *int     `toml:"n_neighbors,omitempty"`
	MinDist      *float64 `toml:"min_dist,omitempty"`
	Metric       *string  `toml:"metric,omitempty"`
	NComponents  *int     `toml:"n_components,omitempty"`
	Init         *string  `toml:"init,omitempty"`     // pca | random
	NEpochs      *int     `toml:"n_epochs,omitempty"` // 0 = size dependent
	Perplexity   *float64 `toml:"perplexity,omitempty"`
	LearningRate *float64 `toml:"learning_rate,omitempty"`
	Iterations   *int     `toml:"iterations,omitempty"`
}

// ClusteringConfig configures the density clusterer.
type ClusteringConfig struct {
	Algorithm      *string  `toml:"algorithm,omitempty"` // hdbscan | dbscan
	MinClusterSize *int     `toml:"min_cluster_size,omitempty"`
	MinSamples     *int     `toml:"min_samples,omitempty"` // nil = min_cluster_size
	Metric         *string  `toml:"metric,omitempty"`
	Selection      *string  `toml:"cluster_selection_method,omitempty"` // eom | leaf
	Eps            *float64 `toml:"eps,omitempty"`                      // dbscan only
}

// AnalysisConfig holds the failure-mode policy and preprocessing switches.
type AnalysisConfig struct {
	EntropyThreshold *float64 `toml:"entropy_threshold,omitempty"`
	PurityThreshold  *float64 `toml:"purity_threshold,omitempty"`
	TopN             *int     `toml:"top_n,omitempty"`
	MinLabelCount    *int     `toml:"min_label_count,omitempty"`
	DropUnknown      *bool    `toml:"drop_unknown,omitempty"`
	PathCheckSample  *int     `toml:"path_check_sample,omitempty"`
}

// VisualizationConfig holds figure settings.
type VisualizationConfig struct {
	Skip                *bool `toml:"skip,omitempty"`
	SkipInteractive     *bool `toml:"skip_interactive,omitempty"`
	TopKLabels          *int  `toml:"top_k_labels,omitempty"`
	SamplesPerLabel     *int  `toml:"samples_per_label,omitempty"`
	ScatterSampleSize   *int  `toml:"scatter_sample_size,omitempty"`
	PointSize           *int  `toml:"point_size,omitempty"`
	FigureDPI           *int  `toml:"figure_dpi,omitempty"`
	StripMaxPanels      *int  `toml:"strip_max_panels,omitempty"`
	DashboardSampleSize *int  `toml:"dashboard_sample_size,omitempty"`
	HoverImageSize      *int  `toml:"hover_image_size,omitempty"`
}

// StoreConfig configures the run-history database. An empty path disables it.
type StoreConfig struct {
	Path *string `toml:"path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

func ptrInts(v []int) *[]int {
	out := append([]int{}, v...)
	return &out
}

// EmptyAuditConfig returns an AuditConfig with all fields unset.
func EmptyAuditConfig() *AuditConfig {
	return &AuditConfig{}
}

// LoadAuditConfig loads an AuditConfig from a TOML file and validates it.
// Unknown keys are rejected so typos surface instead of silently using defaults.
func LoadAuditConfig(path string) (*AuditConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("%w: config file must have .toml extension, got %q", ErrInvalidConfig, ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrInvalidConfig, fileInfo.Size(), maxFileSize)
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := EmptyAuditConfig()
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config TOML: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders the config back to TOML.
func (c *AuditConfig) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate resolves defaults and checks every value.
func (c *AuditConfig) Validate() error {
	_, err := c.Resolve()
	return err
}

// Resolve applies defaults and returns the validated, immutable Settings.
func (c *AuditConfig) Resolve() (Settings, error) {
	s := Settings{
		Seed:             c.GetSeed(),
		DeepDiveClusters: c.GetDeepDiveClusters(),
		Paths: Paths{
			RepoRoot:   c.Paths.GetRepoRoot(),
			Embeddings: c.Paths.GetEmbeddings(),
			Metadata:   c.Paths.GetMetadata(),
			OutputDir:  c.Paths.GetOutputDir(),
		},
		Projection: Projection{
			Method:       c.Projection.GetMethod(),
			NNeighbors:   c.Projection.GetNNeighbors(),
			MinDist:      c.Projection.GetMinDist(),
			Metric:       c.Projection.GetMetric(),
			NComponents:  c.Projection.GetNComponents(),
			Init:         c.Projection.GetInit(),
			NEpochs:      c.Projection.GetNEpochs(),
			Perplexity:   c.Projection.GetPerplexity(),
			LearningRate: c.Projection.GetLearningRate(),
			Iterations:   c.Projection.GetIterations(),
		},
		Clustering: Clustering{
			Algorithm:      c.Clustering.GetAlgorithm(),
			MinClusterSize: c.Clustering.GetMinClusterSize(),
			MinSamples:     c.Clustering.GetMinSamples(),
			Metric:         c.Clustering.GetMetric(),
			Selection:      c.Clustering.GetSelection(),
			Eps:            c.Clustering.GetEps(),
		},
		Analysis: Analysis{
			EntropyThreshold: c.Analysis.GetEntropyThreshold(),
			PurityThreshold:  c.Analysis.GetPurityThreshold(),
			TopN:             c.Analysis.GetTopN(),
			MinLabelCount:    c.Analysis.GetMinLabelCount(),
			DropUnknown:      c.Analysis.GetDropUnknown(),
			PathCheckSample:  c.Analysis.GetPathCheckSample(),
		},
		Visualization: Visualization{
			Skip:                c.Visualization.GetSkip(),
			SkipInteractive:     c.Visualization.GetSkipInteractive(),
			TopKLabels:          c.Visualization.GetTopKLabels(),
			SamplesPerLabel:     c.Visualization.GetSamplesPerLabel(),
			ScatterSampleSize:   c.Visualization.GetScatterSampleSize(),
			PointSize:           c.Visualization.GetPointSize(),
			FigureDPI:           c.Visualization.GetFigureDPI(),
			StripMaxPanels:      c.Visualization.GetStripMaxPanels(),
			DashboardSampleSize: c.Visualization.GetDashboardSampleSize(),
			HoverImageSize:      c.Visualization.GetHoverImageSize(),
		},
		Store: Store{Path: c.Store.GetPath()},
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// GetSeed returns the seed value or the default.
func (c *AuditConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}

// GetDeepDiveClusters returns a copy of the deep-dive cluster ids or the
// default. An explicitly empty list stays empty.
func (c *AuditConfig) GetDeepDiveClusters() []int {
	if c.DeepDiveClusters == nil {
		return []int{33, 41}
	}
	return append([]int{}, *c.DeepDiveClusters...)
}

// GetRepoRoot returns the repo_root value or the default.
func (p PathsConfig) GetRepoRoot() string {
	if p.RepoRoot == nil {
		return "."
	}
	return *p.RepoRoot
}

// GetEmbeddings returns the embeddings path or the default.
func (p PathsConfig) GetEmbeddings() string {
	if p.Embeddings == nil {
		return "data/gravityspy_processed/embeddings.npy"
	}
	return *p.Embeddings
}

// GetMetadata returns the metadata path or the default.
func (p PathsConfig) GetMetadata() string {
	if p.Metadata == nil {
		return "data/gravityspy_processed/embeddings_metadata.csv"
	}
	return *p.Metadata
}

// GetOutputDir returns the output_dir value or the default.
func (p PathsConfig) GetOutputDir() string {
	if p.OutputDir == nil {
		return "findings"
	}
	return *p.OutputDir
}

// GetMethod returns the projection method or the default.
func (p ProjectionConfig) GetMethod() string {
	if p.Method == nil {
		return ProjectionUMAP
	}
	return *p.Method
}

// GetNNeighbors returns the n_neighbors value or the default.
func (p ProjectionConfig) GetNNeighbors() int {
	if p.NNeighbors == nil {
		return 30
	}
	return *p.NNeighbors
}

// GetMinDist returns the min_dist value or the default.
func (p ProjectionConfig) GetMinDist() float64 {
	if p.MinDist == nil {
		return 0.1
	}
	return *p.MinDist
}

// GetMetric returns the projection metric or the default.
func (p ProjectionConfig) GetMetric() string {
	if p.Metric == nil {
		return MetricCosine
	}
	return *p.Metric
}

// GetNComponents returns the n_components value or the default.
func (p ProjectionConfig) GetNComponents() int {
	if p.NComponents == nil {
		return 2
	}
	return *p.NComponents
}

// GetInit returns the layout initialisation or the default.
func (p ProjectionConfig) GetInit() string {
	if p.Init == nil {
		return InitPCA
	}
	return *p.Init
}

// GetNEpochs returns the n_epochs value or the default (0, size dependent).
func (p ProjectionConfig) GetNEpochs() int {
	if p.NEpochs == nil {
		return 0
	}
	return *p.NEpochs
}

// GetPerplexity returns the t-SNE perplexity or the default.
func (p ProjectionConfig) GetPerplexity() float64 {
	if p.Perplexity == nil {
		return 30
	}
	return *p.Perplexity
}

// GetLearningRate returns the t-SNE learning rate or the default.
func (p ProjectionConfig) GetLearningRate() float64 {
	if p.LearningRate == nil {
		return 200
	}
	return *p.LearningRate
}

// GetIterations returns the t-SNE iteration count or the default.
func (p ProjectionConfig) GetIterations() int {
	if p.Iterations == nil {
		return 1000
	}
	return *p.Iterations
}

// GetAlgorithm returns the clustering algorithm or the default.
func (c ClusteringConfig) GetAlgorithm() string {
	if c.Algorithm == nil {
		return ClusterHDBSCAN
	}
	return *c.Algorithm
}

// GetMinClusterSize returns the min_cluster_size value or the default.
func (c ClusteringConfig) GetMinClusterSize() int {
	if c.MinClusterSize == nil {
		return 50
	}
	return *c.MinClusterSize
}

// GetMinSamples returns min_samples, defaulting to min_cluster_size when unset.
func (c ClusteringConfig) GetMinSamples() int {
	if c.MinSamples == nil {
		return c.GetMinClusterSize()
	}
	return *c.MinSamples
}

// GetMetric returns the clustering metric or the default.
func (c ClusteringConfig) GetMetric() string {
	if c.Metric == nil {
		return MetricEuclidean
	}
	return *c.Metric
}

// GetSelection returns the cluster selection method or the default.
func (c ClusteringConfig) GetSelection() string {
	if c.Selection == nil {
		return SelectionEOM
	}
	return *c.Selection
}

// GetEps returns the DBSCAN radius or the default.
func (c ClusteringConfig) GetEps() float64 {
	if c.Eps == nil {
		return 0.5
	}
	return *c.Eps
}

// GetEntropyThreshold returns the over-splitting threshold in bits or the default.
func (a AnalysisConfig) GetEntropyThreshold() float64 {
	if a.EntropyThreshold == nil {
		return 2.0
	}
	return *a.EntropyThreshold
}

// GetPurityThreshold returns the over-compression threshold or the default.
func (a AnalysisConfig) GetPurityThreshold() float64 {
	if a.PurityThreshold == nil {
		return 0.5
	}
	return *a.PurityThreshold
}

// GetTopN returns how many ambiguous clusters the summary lists.
func (a AnalysisConfig) GetTopN() int {
	if a.TopN == nil {
		return 5
	}
	return *a.TopN
}

// GetMinLabelCount returns the rare-label filter threshold (0 disables filtering).
func (a AnalysisConfig) GetMinLabelCount() int {
	if a.MinLabelCount == nil {
		return 0
	}
	return *a.MinLabelCount
}

// GetDropUnknown reports whether samples labelled "unknown" are dropped.
func (a AnalysisConfig) GetDropUnknown() bool {
	if a.DropUnknown == nil {
		return false
	}
	return *a.DropUnknown
}

// GetPathCheckSample returns how many image paths are spot-checked at load.
func (a AnalysisConfig) GetPathCheckSample() int {
	if a.PathCheckSample == nil {
		return 100
	}
	return *a.PathCheckSample
}

// GetSkip reports whether figure generation is skipped.
func (v VisualizationConfig) GetSkip() bool {
	if v.Skip == nil {
		return false
	}
	return *v.Skip
}

// GetSkipInteractive reports whether the HTML dashboard is skipped.
func (v VisualizationConfig) GetSkipInteractive() bool {
	if v.SkipInteractive == nil {
		return false
	}
	return *v.SkipInteractive
}

// GetTopKLabels returns the contact sheet row count or the default.
func (v VisualizationConfig) GetTopKLabels() int {
	if v.TopKLabels == nil {
		return 6
	}
	return *v.TopKLabels
}

// GetSamplesPerLabel returns the contact sheet column count or the default.
func (v VisualizationConfig) GetSamplesPerLabel() int {
	if v.SamplesPerLabel == nil {
		return 5
	}
	return *v.SamplesPerLabel
}

// GetScatterSampleSize returns the scatter plot subsample size or the default.
func (v VisualizationConfig) GetScatterSampleSize() int {
	if v.ScatterSampleSize == nil {
		return 12000
	}
	return *v.ScatterSampleSize
}

// GetPointSize returns the scatter point size or the default.
func (v VisualizationConfig) GetPointSize() int {
	if v.PointSize == nil {
		return 6
	}
	return *v.PointSize
}

// GetFigureDPI returns the figure resolution or the default.
func (v VisualizationConfig) GetFigureDPI() int {
	if v.FigureDPI == nil {
		return 200
	}
	return *v.FigureDPI
}

// GetStripMaxPanels returns the intensity strip panel cap or the default.
func (v VisualizationConfig) GetStripMaxPanels() int {
	if v.StripMaxPanels == nil {
		return 12
	}
	return *v.StripMaxPanels
}

// GetDashboardSampleSize returns the dashboard subsample size or the default.
func (v VisualizationConfig) GetDashboardSampleSize() int {
	if v.DashboardSampleSize == nil {
		return 5000
	}
	return *v.DashboardSampleSize
}

// GetHoverImageSize returns the dashboard thumbnail edge in pixels or the default.
func (v VisualizationConfig) GetHoverImageSize() int {
	if v.HoverImageSize == nil {
		return 220
	}
	return *v.HoverImageSize
}

// GetPath returns the run-history database path or the default.
func (s StoreConfig) GetPath() string {
	if s.Path == nil {
		return "findings/audit_runs.db"
	}
	return *s.Path
}
