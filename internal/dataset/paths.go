package dataset

import (
	"math/rand/v2"

	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
)

// PathCheck summarises a spot check of image paths.
type PathCheck struct {
	Checked     int
	Exists      int
	Missing     int
	MissingRate float64
}

// ValidateImagePaths checks that a seeded random sample of at most
// sampleSize image paths exist. Missing images only produce a warning:
// they matter to figures, not to the analysis.
func ValidateImagePaths(fsys fsutil.FileSystem, c *Collection, sampleSize int, seed int64) PathCheck {
	n := c.Len()
	if sampleSize > n {
		sampleSize = n
	}
	if sampleSize <= 0 {
		return PathCheck{}
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	idx := rng.Perm(n)[:sampleSize]

	var check PathCheck
	for _, i := range idx {
		check.Checked++
		if fsys.Exists(c.samples[i].Path) {
			check.Exists++
		} else {
			check.Missing++
		}
	}
	check.MissingRate = float64(check.Missing) / float64(check.Checked)

	if check.Missing > 0 {
		monitoring.Warnf("[data] %d/%d sampled image paths don't exist", check.Missing, check.Checked)
	} else {
		monitoring.Logf("[data] path validation passed: %d/%d exist", check.Exists, check.Checked)
	}
	return check
}
