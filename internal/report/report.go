// Package report writes the result tables of an audit run.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/glitch.audit/internal/audit"
	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
)

// Output file names inside the outputs directory.
const (
	AssignmentsFile  = "metadata_clustered.csv"
	ClusterStatsFile = "cluster_stats.csv"
	RankedFile       = "ambiguity_ranked.csv"
	FailureModesFile = "failure_modes.json"
	SummaryFile      = "summary.txt"
)

// Row is one sample of the enriched sample table.
type Row struct {
	ID             string
	Path           string
	Label          string
	RawLabel       string
	Interferometer string
	X, Y           float64
	ClusterID      int
	Probability    float64
}

var assignmentHeader = []string{"id", "path", "label", "raw_label", "ifo", "umap_x", "umap_y", "cluster_id", "probability"}

var statsHeader = []string{"cluster_id", "n", "top_label", "top_label_count", "purity", "ambiguity", "entropy", "n_labels"}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteAssignments writes the enriched sample table as CSV.
func WriteAssignments(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(assignmentHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.ID, r.Path, r.Label, r.RawLabel, r.Interferometer,
			ftoa(r.X), ftoa(r.Y),
			strconv.Itoa(r.ClusterID), ftoa(r.Probability),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteClusterStats writes cluster statistics as CSV in the given order.
// An empty slice produces a header-only table.
func WriteClusterStats(w io.Writer, stats []audit.ClusterStats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(statsHeader); err != nil {
		return err
	}
	for _, s := range stats {
		rec := []string{
			strconv.Itoa(s.ClusterID),
			strconv.Itoa(s.N),
			s.TopLabel,
			strconv.Itoa(s.TopLabelCount),
			ftoa(s.Purity),
			ftoa(s.Ambiguity),
			ftoa(s.Entropy),
			strconv.Itoa(s.NLabels),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FailureModesDoc is the JSON document written to failure_modes.json.
type FailureModesDoc struct {
	OverSplitting    []int   `json:"over_splitting"`
	OverCompression  []int   `json:"over_compression"`
	EntropyThreshold float64 `json:"entropy_threshold"`
	PurityThreshold  float64 `json:"purity_threshold"`
}

// WriteFailureModes writes both failure-mode id sets with the thresholds
// that produced them.
func WriteFailureModes(w io.Writer, modes audit.FailureModes, entropyThreshold, purityThreshold float64) error {
	doc := FailureModesDoc{
		OverSplitting:    nonNil(modes.OverSplitting),
		OverCompression:  nonNil(modes.OverCompression),
		EntropyThreshold: entropyThreshold,
		PurityThreshold:  purityThreshold,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}

// Tables is everything Save writes.
type Tables struct {
	Rows    []Row
	Stats   []audit.ClusterStats // ordered by cluster id
	Ranked  []audit.ClusterStats // ordered by ambiguity
	Summary audit.Summary
	TopN    int
}

// Save writes all result tables into dir and returns the written paths in
// a fixed order.
func Save(fsys fsutil.FileSystem, dir string, t Tables) ([]string, error) {
	if _, err := fsutil.EnsureDir(fsys, dir); err != nil {
		return nil, fmt.Errorf("create outputs dir: %w", err)
	}

	writers := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{AssignmentsFile, func(w io.Writer) error { return WriteAssignments(w, t.Rows) }},
		{ClusterStatsFile, func(w io.Writer) error { return WriteClusterStats(w, t.Stats) }},
		{RankedFile, func(w io.Writer) error { return WriteClusterStats(w, t.Ranked) }},
		{FailureModesFile, func(w io.Writer) error {
			return WriteFailureModes(w, t.Summary.Modes, t.Summary.EntropyThreshold, t.Summary.PurityThreshold)
		}},
		{SummaryFile, func(w io.Writer) error {
			_, err := io.WriteString(w, audit.SummaryReport(t.Summary, t.TopN))
			return err
		}},
	}

	paths := make([]string, 0, len(writers))
	for _, wr := range writers {
		p := filepath.Join(dir, wr.name)
		if err := fsutil.WriteTo(fsys, p, wr.fn); err != nil {
			return paths, fmt.Errorf("write %s: %w", wr.name, err)
		}
		monitoring.Logf("[save] %s", p)
		paths = append(paths, p)
	}
	return paths, nil
}
