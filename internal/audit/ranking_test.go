package audit

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankByAmbiguity(t *testing.T) {
	stats := []ClusterStats{
		{ClusterID: 0, Ambiguity: 1},
		{ClusterID: 1, Ambiguity: 5},
		{ClusterID: 2, Ambiguity: 5},
		{ClusterID: 3, Ambiguity: 0},
		{ClusterID: 4, Ambiguity: 9},
		{ClusterID: 5, Ambiguity: 1},
	}
	orig := append([]ClusterStats(nil), stats...)

	ranked := RankByAmbiguity(stats)

	ids := make([]int, len(ranked))
	for i, s := range ranked {
		ids[i] = s.ClusterID
	}
	assert.Equal(t, []int{4, 1, 2, 0, 5, 3}, ids, "ties keep cluster-id order")

	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Ambiguity, ranked[i].Ambiguity)
	}
	if diff := cmp.Diff(orig, stats); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
	assert.Equal(t, ranked, RankByAmbiguity(stats), "deterministic")
	assert.Empty(t, RankByAmbiguity(nil))
}

func TestIdentifyFailureModes(t *testing.T) {
	stats := []ClusterStats{
		{ClusterID: 0, Entropy: 2.0, Purity: 0.9},  // entropy on the boundary
		{ClusterID: 1, Entropy: 1.99, Purity: 0.5}, // purity on the boundary
		{ClusterID: 2, Entropy: 2.5, Purity: 0.3},  // both
		{ClusterID: 3, Entropy: 0, Purity: 1},      // neither
		{ClusterID: 4, Entropy: 1.0, Purity: 0.51},
	}

	modes := IdentifyFailureModes(stats, DefaultEntropyThreshold, DefaultPurityThreshold)
	assert.Equal(t, []int{0, 2}, modes.OverSplitting)
	assert.Equal(t, []int{1, 2}, modes.OverCompression)

	t.Run("thresholds are adjustable", func(t *testing.T) {
		m := IdentifyFailureModes(stats, 0.5, 0.95)
		assert.Equal(t, []int{0, 1, 2, 4}, m.OverSplitting)
		assert.Equal(t, []int{0, 1, 2, 4}, m.OverCompression)
	})

	t.Run("ranked input still yields ascending ids", func(t *testing.T) {
		ranked := []ClusterStats{stats[2], stats[1], stats[0]}
		m := IdentifyFailureModes(ranked, DefaultEntropyThreshold, DefaultPurityThreshold)
		assert.Equal(t, []int{0, 2}, m.OverSplitting)
		assert.Equal(t, []int{1, 2}, m.OverCompression)
	})

	t.Run("empty", func(t *testing.T) {
		m := IdentifyFailureModes(nil, 2, 0.5)
		assert.NotNil(t, m.OverSplitting)
		assert.NotNil(t, m.OverCompression)
		assert.Empty(t, m.OverSplitting)
	})
}

func TestSummarize(t *testing.T) {
	var assigned []Assignment
	assigned = append(assigned, cluster(0, repeat("A", 6), repeat("B", 2))...)
	assigned = append(assigned, cluster(Noise, repeat("C", 2))...)
	ranked := RankByAmbiguity(ComputeClusterStats(assigned))

	s := Summarize(assigned, ranked, FailureModes{}, 2, 0.5)
	assert.Equal(t, 10, s.TotalSamples)
	assert.Equal(t, 2, s.NoiseSamples)
	assert.InDelta(t, 0.2, s.NoiseFraction, 1e-12)
	assert.Equal(t, 3, s.UniqueLabels)
	assert.Equal(t, 1, s.Clusters)

	assert.Zero(t, Summarize(nil, nil, FailureModes{}, 2, 0.5).NoiseFraction)
}

func TestSummaryReport(t *testing.T) {
	var assigned []Assignment
	assigned = append(assigned, cluster(0, repeat("Blip", 1500))...)
	assigned = append(assigned, cluster(1, repeat("Whistle", 3), repeat("Tomte", 3))...)
	assigned = append(assigned, cluster(Noise, repeat("Blip", 4))...)
	stats := ComputeClusterStats(assigned)
	ranked := RankByAmbiguity(stats)
	modes := IdentifyFailureModes(stats, 2, 0.5)

	report := SummaryReport(Summarize(assigned, ranked, modes, 2, 0.5), 1)

	assert.Contains(t, report, "Total samples:   1,510")
	assert.Contains(t, report, "Clusters found:  2")
	assert.Contains(t, report, "Top 1 most ambiguous clusters")
	assert.Contains(t, report, "Tomte (3)")
	assert.NotContains(t, report, "Blip (1500)", "only topN rows")
	assert.Contains(t, report, "Over-splitting (entropy >= 2.00 bits): none")
	assert.Contains(t, report, "Over-compression (purity <= 0.50): 1")
}

func TestSummaryReport_NoClusters(t *testing.T) {
	assigned := cluster(Noise, repeat("Blip", 3))
	stats := ComputeClusterStats(assigned)
	s := Summarize(assigned, RankByAmbiguity(stats), IdentifyFailureModes(stats, 2, 0.5), 2, 0.5)

	var report string
	require.NotPanics(t, func() { report = SummaryReport(s, 5) })
	assert.Contains(t, report, "Clusters found:  0")
	assert.Contains(t, report, "No clusters found")
	assert.True(t, strings.Contains(report, "100.0%"))
}
