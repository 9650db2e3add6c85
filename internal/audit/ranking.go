package audit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Default failure-mode thresholds.
const (
	DefaultEntropyThreshold = 2.0
	DefaultPurityThreshold  = 0.5
)

// RankByAmbiguity returns a copy of stats ordered by ambiguity, highest
// first. Equal ambiguities keep their input order.
func RankByAmbiguity(stats []ClusterStats) []ClusterStats {
	ranked := make([]ClusterStats, len(stats))
	copy(ranked, stats)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Ambiguity > ranked[j].Ambiguity
	})
	return ranked
}

// FailureModes holds the cluster ids flagged by IdentifyFailureModes. A
// cluster may appear in both sets.
type FailureModes struct {
	// OverSplitting: one morphology spread over many labels (high entropy).
	OverSplitting []int `json:"over_splitting"`
	// OverCompression: several morphologies under one label (low purity).
	OverCompression []int `json:"over_compression"`
}

// IdentifyFailureModes flags clusters with Entropy >= entropyThreshold as
// over-splitting and clusters with Purity <= purityThreshold as
// over-compression. Both bounds are inclusive. Ids are returned ascending
// and the slices are never nil.
func IdentifyFailureModes(stats []ClusterStats, entropyThreshold, purityThreshold float64) FailureModes {
	modes := FailureModes{OverSplitting: []int{}, OverCompression: []int{}}
	for _, s := range stats {
		if s.Entropy >= entropyThreshold {
			modes.OverSplitting = append(modes.OverSplitting, s.ClusterID)
		}
		if s.Purity <= purityThreshold {
			modes.OverCompression = append(modes.OverCompression, s.ClusterID)
		}
	}
	sort.Ints(modes.OverSplitting)
	sort.Ints(modes.OverCompression)
	return modes
}

// Summary is the headline view of one audit run.
type Summary struct {
	TotalSamples     int
	NoiseSamples     int
	NoiseFraction    float64
	UniqueLabels     int
	Clusters         int
	EntropyThreshold float64
	PurityThreshold  float64
	Ranked           []ClusterStats
	Modes            FailureModes
}

// Summarize assembles a Summary from the assignments and ranked statistics.
func Summarize(assigned []Assignment, ranked []ClusterStats, modes FailureModes, entropyThreshold, purityThreshold float64) Summary {
	s := Summary{
		TotalSamples:     len(assigned),
		Clusters:         len(ranked),
		EntropyThreshold: entropyThreshold,
		PurityThreshold:  purityThreshold,
		Ranked:           ranked,
		Modes:            modes,
	}
	labels := make(map[string]struct{})
	for _, a := range assigned {
		labels[a.Label] = struct{}{}
		if a.ClusterID == Noise {
			s.NoiseSamples++
		}
	}
	s.UniqueLabels = len(labels)
	if s.TotalSamples > 0 {
		s.NoiseFraction = float64(s.NoiseSamples) / float64(s.TotalSamples)
	}
	return s
}

// SummaryReport renders s as plain text with the topN most ambiguous
// clusters in a table. A run without clusters says so rather than printing
// an empty table.
func SummaryReport(s Summary, topN int) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString("Label audit summary\n")
	b.WriteString("===================\n\n")
	p.Fprintf(&b, "Total samples:   %d\n", s.TotalSamples)
	p.Fprintf(&b, "Noise samples:   %d (%.1f%%)\n", s.NoiseSamples, 100*s.NoiseFraction)
	p.Fprintf(&b, "Unique labels:   %d\n", s.UniqueLabels)
	p.Fprintf(&b, "Clusters found:  %d\n\n", s.Clusters)

	if len(s.Ranked) == 0 {
		b.WriteString("No clusters found: every sample was classified as noise.\n")
		return b.String()
	}

	if topN > len(s.Ranked) {
		topN = len(s.Ranked)
	}
	fmt.Fprintf(&b, "Top %d most ambiguous clusters:\n", topN)
	b.WriteString(StatsTable(s.Ranked[:topN], table.StyleDefault))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Over-splitting (entropy >= %.2f bits): %s\n", s.EntropyThreshold, formatIDs(s.Modes.OverSplitting))
	fmt.Fprintf(&b, "Over-compression (purity <= %.2f): %s\n", s.PurityThreshold, formatIDs(s.Modes.OverCompression))
	return b.String()
}

// StatsTable renders cluster statistics as a table in the given style.
func StatsTable(stats []ClusterStats, style table.Style) string {
	tw := table.NewWriter()
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"Cluster", "N", "Top label", "Purity", "Ambiguity", "Entropy", "Labels"})
	for _, s := range stats {
		tw.AppendRow(table.Row{
			s.ClusterID,
			s.N,
			fmt.Sprintf("%s (%d)", s.TopLabel, s.TopLabelCount),
			fmt.Sprintf("%.3f", s.Purity),
			fmt.Sprintf("%.1f", s.Ambiguity),
			fmt.Sprintf("%.3f", s.Entropy),
			s.NLabels,
		})
	}
	configs := make([]table.ColumnConfig, 0, 7)
	for i := 1; i <= 7; i++ {
		align := text.AlignRight
		if i == 3 {
			align = text.AlignLeft
		}
		configs = append(configs, table.ColumnConfig{Number: i, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func formatIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
