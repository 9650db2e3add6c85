// Package audit scores clusters against human labels.
//
// Cluster ids are opaque per-run integers. They are assigned afresh by every
// clustering and must never be compared across runs with different seeds,
// inputs or hyperparameters.
package audit

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Noise is the cluster id of samples that belong to no cluster.
const Noise = -1

// Assignment pairs a sample's label with its cluster id.
type Assignment struct {
	ClusterID int
	Label     string
}

// ClusterStats describes the label make-up of one non-noise cluster.
type ClusterStats struct {
	ClusterID     int     `json:"cluster_id"`
	N             int     `json:"n"`
	TopLabel      string  `json:"top_label"`
	TopLabelCount int     `json:"top_label_count"`
	Purity        float64 `json:"purity"`    // TopLabelCount / N
	Ambiguity     float64 `json:"ambiguity"` // N * (1 - Purity)
	Entropy       float64 `json:"entropy"`   // bits
	NLabels       int     `json:"n_labels"`
}

// LabelCount is a label with its number of occurrences.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ComputeEntropy returns the Shannon entropy in bits of the empirical label
// distribution. It is 0 when fewer than two distinct labels are present.
func ComputeEntropy(labels []string) float64 {
	return entropyOf(countLabels(labels))
}

func entropyOf(counts []LabelCount) float64 {
	if len(counts) < 2 {
		return 0
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	p := make([]float64, 0, len(counts))
	for _, c := range counts {
		if c.Count > 0 {
			p = append(p, float64(c.Count)/float64(total))
		}
	}
	if len(p) < 2 {
		return 0
	}
	// stat.Entropy skips zero probabilities and works in nats.
	return stat.Entropy(p) / math.Ln2
}

// countLabels tallies labels, most frequent first. Equal counts are ordered
// by label so the head of the slice is the majority label with ties going to
// the lexicographically smallest one.
func countLabels(labels []string) []LabelCount {
	tally := make(map[string]int)
	for _, l := range labels {
		tally[l]++
	}
	out := make([]LabelCount, 0, len(tally))
	for l, n := range tally {
		out = append(out, LabelCount{Label: l, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// groupByCluster collects labels per non-noise cluster id.
func groupByCluster(assigned []Assignment) (map[int][]string, []int) {
	groups := make(map[int][]string)
	for _, a := range assigned {
		if a.ClusterID == Noise {
			continue
		}
		groups[a.ClusterID] = append(groups[a.ClusterID], a.Label)
	}
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return groups, ids
}

// ComputeClusterStats builds one record per non-noise cluster, ordered by
// cluster id. Noise samples are excluded; when nothing but noise is present
// the result is an empty, non-nil slice.
//
// The majority label is the most frequent one. Ties go to the
// lexicographically smallest label.
func ComputeClusterStats(assigned []Assignment) []ClusterStats {
	groups, ids := groupByCluster(assigned)
	out := make([]ClusterStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, statsFor(id, groups[id]))
	}
	return out
}

func statsFor(id int, labels []string) ClusterStats {
	counts := countLabels(labels)
	n := len(labels)
	top := counts[0]
	purity := float64(top.Count) / float64(n)
	return ClusterStats{
		ClusterID:     id,
		N:             n,
		TopLabel:      top.Label,
		TopLabelCount: top.Count,
		Purity:        purity,
		Ambiguity:     float64(n - top.Count),
		Entropy:       entropyOf(counts),
		NLabels:       len(counts),
	}
}

// LabelDistribution returns the label counts within one cluster, most
// frequent first. An absent cluster yields an empty slice.
func LabelDistribution(assigned []Assignment, clusterID int) []LabelCount {
	var labels []string
	for _, a := range assigned {
		if a.ClusterID == clusterID {
			labels = append(labels, a.Label)
		}
	}
	return countLabels(labels)
}

// ClusterSize is the member count of one cluster.
type ClusterSize struct {
	ClusterID int
	N         int
}

// ClusterSizes returns the size of every non-noise cluster, ordered by id.
func ClusterSizes(assigned []Assignment) []ClusterSize {
	groups, ids := groupByCluster(assigned)
	out := make([]ClusterSize, 0, len(ids))
	for _, id := range ids {
		out = append(out, ClusterSize{ClusterID: id, N: len(groups[id])})
	}
	return out
}

// HasCluster reports whether any sample is assigned to clusterID.
func HasCluster(assigned []Assignment, clusterID int) bool {
	for _, a := range assigned {
		if a.ClusterID == clusterID {
			return true
		}
	}
	return false
}
