package audit

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeat(label string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label
	}
	return out
}

func cluster(id int, labels ...[]string) []Assignment {
	var out []Assignment
	for _, group := range labels {
		for _, l := range group {
			out = append(out, Assignment{ClusterID: id, Label: l})
		}
	}
	return out
}

func TestComputeEntropy(t *testing.T) {
	t.Run("single label is zero for any size", func(t *testing.T) {
		for _, n := range []int{1, 2, 10, 1000} {
			assert.Equal(t, 0.0, ComputeEntropy(repeat("Blip", n)), "n=%d", n)
		}
	})

	t.Run("uniform distribution is log2 k", func(t *testing.T) {
		for k := 2; k <= 8; k++ {
			var labels []string
			for i := 0; i < k; i++ {
				labels = append(labels, repeat(string(rune('A'+i)), 5)...)
			}
			assert.InDelta(t, math.Log2(float64(k)), ComputeEntropy(labels), 1e-12, "k=%d", k)
		}
	})

	t.Run("worked example", func(t *testing.T) {
		labels := append(append(repeat("A", 7), repeat("B", 2)...), "C")
		want := -(0.7*math.Log2(0.7) + 0.2*math.Log2(0.2) + 0.1*math.Log2(0.1))
		got := ComputeEntropy(labels)
		assert.InDelta(t, want, got, 1e-12)
		assert.InDelta(t, 1.157, got, 1e-3)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, 0.0, ComputeEntropy(nil))
	})

	t.Run("order independent", func(t *testing.T) {
		a := ComputeEntropy([]string{"x", "y", "y", "z"})
		b := ComputeEntropy([]string{"y", "z", "x", "y"})
		assert.Equal(t, a, b)
	})
}

func TestComputeClusterStats_WorkedExample(t *testing.T) {
	assigned := cluster(4, repeat("A", 7), repeat("B", 2), []string{"C"})

	stats := ComputeClusterStats(assigned)
	require.Len(t, stats, 1)
	s := stats[0]
	assert.Equal(t, 4, s.ClusterID)
	assert.Equal(t, 10, s.N)
	assert.Equal(t, "A", s.TopLabel)
	assert.Equal(t, 7, s.TopLabelCount)
	assert.InDelta(t, 0.7, s.Purity, 1e-12)
	assert.InDelta(t, 3.0, s.Ambiguity, 1e-12)
	assert.InDelta(t, 1.157, s.Entropy, 1e-3)
	assert.Equal(t, 3, s.NLabels)
}

func TestComputeClusterStats_TieBreak(t *testing.T) {
	// Insertion order puts "Whistle" first; the lexicographically smallest
	// label must still win.
	assigned := cluster(0, repeat("Whistle", 3), repeat("Blip", 3), repeat("Koi_Fish", 3))

	for i := 0; i < 20; i++ {
		stats := ComputeClusterStats(assigned)
		require.Len(t, stats, 1)
		assert.Equal(t, "Blip", stats[0].TopLabel)
		assert.Equal(t, 3, stats[0].TopLabelCount)
	}

	reversed := make([]Assignment, len(assigned))
	for i, a := range assigned {
		reversed[len(assigned)-1-i] = a
	}
	assert.Equal(t, "Blip", ComputeClusterStats(reversed)[0].TopLabel)
}

func TestComputeClusterStats_ExcludesNoise(t *testing.T) {
	var assigned []Assignment
	assigned = append(assigned, cluster(Noise, repeat("Blip", 50))...)
	assigned = append(assigned, cluster(2, repeat("Whistle", 4))...)
	assigned = append(assigned, cluster(0, repeat("Blip", 3), []string{"Tomte"})...)
	assigned = append(assigned, cluster(7, []string{"Scratchy"})...)

	stats := ComputeClusterStats(assigned)
	require.Len(t, stats, 3, "one record per distinct non-noise id")

	ids := []int{stats[0].ClusterID, stats[1].ClusterID, stats[2].ClusterID}
	assert.Equal(t, []int{0, 2, 7}, ids, "sorted by cluster id")

	total := 0
	for _, s := range stats {
		total += s.N
	}
	assert.Equal(t, 9, total)
}

func TestComputeClusterStats_AllNoise(t *testing.T) {
	stats := ComputeClusterStats(cluster(Noise, repeat("Blip", 10)))
	assert.NotNil(t, stats)
	assert.Empty(t, stats)

	assert.Empty(t, ComputeClusterStats(nil))
}

func TestComputeClusterStats_Properties(t *testing.T) {
	var assigned []Assignment
	assigned = append(assigned, cluster(0, repeat("A", 12))...)
	assigned = append(assigned, cluster(1, repeat("A", 5), repeat("B", 5))...)
	assigned = append(assigned, cluster(2, repeat("A", 1), repeat("B", 2), repeat("C", 3), repeat("D", 4))...)
	assigned = append(assigned, cluster(3, []string{"Z"})...)

	for _, s := range ComputeClusterStats(assigned) {
		assert.GreaterOrEqual(t, s.Purity, 0.0)
		assert.LessOrEqual(t, s.Purity, 1.0)
		assert.InDelta(t, float64(s.N)*(1-s.Purity), s.Ambiguity, 1e-9)
		assert.Equal(t, s.Purity == 1.0, s.Entropy == 0.0, "cluster %d", s.ClusterID)
		assert.Equal(t, s.Purity == 1.0, s.Ambiguity == 0.0, "cluster %d", s.ClusterID)
		assert.GreaterOrEqual(t, s.Ambiguity, 0.0)
		assert.LessOrEqual(t, s.Ambiguity, float64(s.N))
	}
}

func TestComputeClusterStats_Rebuilt(t *testing.T) {
	assigned := cluster(0, repeat("A", 3), repeat("B", 1))
	first := ComputeClusterStats(assigned)

	assigned[3].Label = "A"
	second := ComputeClusterStats(assigned)

	assert.Equal(t, 0.75, first[0].Purity, "earlier result is not mutated")
	assert.Equal(t, 1.0, second[0].Purity)
}

func TestLabelDistribution(t *testing.T) {
	var assigned []Assignment
	assigned = append(assigned, cluster(1, repeat("B", 2), repeat("A", 2), repeat("C", 5))...)
	assigned = append(assigned, cluster(2, repeat("A", 9))...)

	got := LabelDistribution(assigned, 1)
	want := []LabelCount{{"C", 5}, {"A", 2}, {"B", 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LabelDistribution() mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, LabelDistribution(assigned, 99))
}

func TestClusterSizes(t *testing.T) {
	var assigned []Assignment
	assigned = append(assigned, cluster(3, repeat("A", 2))...)
	assigned = append(assigned, cluster(Noise, repeat("A", 4))...)
	assigned = append(assigned, cluster(1, repeat("B", 6))...)

	want := []ClusterSize{{ClusterID: 1, N: 6}, {ClusterID: 3, N: 2}}
	if diff := cmp.Diff(want, ClusterSizes(assigned)); diff != "" {
		t.Errorf("ClusterSizes() mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, HasCluster(assigned, 3))
	assert.False(t, HasCluster(assigned, 33))
}
