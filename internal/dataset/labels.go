package dataset

import (
	"path"
	"sort"
	"strings"

	"github.com/banshee-data/glitch.audit/internal/monitoring"
)

// Interferometer tags.
const (
	IFOHanford    = "H1"
	IFOLivingston = "L1"
)

// slashPath normalises Windows separators so paths recorded on any platform
// parse the same way.
func slashPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// ParseSampleID extracts the Gravity Spy id from a file name of the form
// {IFO}_{ID}_spectrogram_{duration}.png, falling back to the file stem.
func ParseSampleID(filePath string) string {
	name := path.Base(slashPath(filePath))
	if parts := strings.Split(name, "_"); len(parts) >= 3 {
		return parts[1]
	}
	return strings.TrimSuffix(name, path.Ext(name))
}

// ParseInterferometer returns H1 or L1 from the file name prefix or a path
// segment, or "unknown".
func ParseInterferometer(filePath string) string {
	p := slashPath(filePath)
	prefix := strings.Split(path.Base(p), "_")[0]
	if prefix == IFOHanford || prefix == IFOLivingston {
		return prefix
	}

	upper := strings.ToUpper(p)
	for _, ifo := range []string{IFOHanford, IFOLivingston} {
		if strings.Contains(upper, "/"+ifo+"/") || strings.HasPrefix(upper, ifo) {
			return ifo
		}
	}
	return UnknownLabel
}

// ParseLabelFromPath returns the immediate parent directory name, which holds
// the authoritative glitch class (.../{CLASS}/{file}.png).
func ParseLabelFromPath(filePath string) string {
	dir := path.Dir(slashPath(filePath))
	parent := path.Base(dir)
	if dir == "." || parent == "." || parent == "/" || parent == "" {
		return UnknownLabel
	}
	return parent
}

// CorrectLabels returns a new Collection whose ID, Interferometer and Label
// are derived from each sample's path. The loaded label is kept in RawLabel.
func CorrectLabels(c *Collection) (*Collection, error) {
	monitoring.Logf("[preprocess] extracting metadata from file paths...")

	samples := c.Samples()
	unknown := 0
	for i := range samples {
		s := &samples[i]
		s.ID = ParseSampleID(s.Path)
		s.Interferometer = ParseInterferometer(s.Path)
		s.Label = ParseLabelFromPath(s.Path)
		if s.Label == UnknownLabel {
			unknown++
		}
	}
	if unknown > 0 {
		monitoring.Warnf("[preprocess] %d samples have unknown labels", unknown)
	}

	out, err := c.WithSamples(samples)
	if err != nil {
		return nil, err
	}
	counts := CountLabels(out)
	monitoring.Logf("[preprocess] found %d unique labels", len(counts))
	if len(counts) > 5 {
		counts = counts[:5]
	}
	monitoring.Logf("[preprocess] top labels: %v", counts)
	return out, nil
}

// LabelCount is a label with its number of samples.
type LabelCount struct {
	Label string
	Count int
}

// CountLabels tallies analysis labels, most frequent first, ties by label.
func CountLabels(c *Collection) []LabelCount {
	tally := make(map[string]int)
	for _, s := range c.samples {
		tally[s.Label]++
	}
	out := make([]LabelCount, 0, len(tally))
	for label, n := range tally {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// FilterValid drops samples whose label occurs fewer than minLabelCount times
// and, when dropUnknown is set, samples labelled "unknown". minLabelCount <= 1
// keeps every label. The input collection is unchanged.
func FilterValid(c *Collection, minLabelCount int, dropUnknown bool) (*Collection, error) {
	tally := make(map[string]int)
	for _, s := range c.samples {
		tally[s.Label]++
	}

	rows := make([]int, 0, c.Len())
	for i, s := range c.samples {
		if dropUnknown && s.Label == UnknownLabel {
			continue
		}
		if tally[s.Label] < minLabelCount {
			continue
		}
		rows = append(rows, i)
	}
	if len(rows) == c.Len() {
		return c, nil
	}

	out, err := c.Subset(rows)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("[preprocess] filtered: %d -> %d samples", c.Len(), out.Len())
	return out, nil
}
