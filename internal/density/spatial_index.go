package density

import (
	"math"
	"slices"
)

// estimatedPointsPerCell sizes the initial grid map.
const estimatedPointsPerCell = 4

// SpatialIndex buckets 2D points into a regular grid for radius queries.
// CellSize should be about the query radius.
type SpatialIndex struct {
	CellSize float64
	Grid     map[int64][]int // cell id → point indices
}

// NewSpatialIndex creates an empty index with the given cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int),
	}
}

// Build indexes pts, replacing any previous content.
func (si *SpatialIndex) Build(pts [][2]float64) {
	si.Grid = make(map[int64][]int, len(pts)/estimatedPointsPerCell+1)
	for i, p := range pts {
		id := cellID(si.cell(p[0]), si.cell(p[1]))
		si.Grid[id] = append(si.Grid[id], i)
	}
}

func (si *SpatialIndex) cell(v float64) int64 {
	return int64(math.Floor(v / si.CellSize))
}

// cellID pairs signed cell coordinates into one key: zigzag to non-negative,
// then Szudzik's pairing.
func cellID(cx, cy int64) int64 {
	a, b := zigzag(cx), zigzag(cy)
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

// RegionQuery returns the indices of all points within eps of pts[idx],
// idx included, in ascending order.
func (si *SpatialIndex) RegionQuery(pts [][2]float64, idx int, eps float64) []int {
	p := pts[idx]
	eps2 := eps * eps
	cx, cy := si.cell(p[0]), si.cell(p[1])

	// Cells wider than eps only need the 3×3 block; narrower ones need more.
	reach := int64(math.Ceil(eps / si.CellSize))
	var neighbors []int
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for _, j := range si.Grid[cellID(cx+dx, cy+dy)] {
				ddx, ddy := pts[j][0]-p[0], pts[j][1]-p[1]
				if ddx*ddx+ddy*ddy <= eps2 {
					neighbors = append(neighbors, j)
				}
			}
		}
	}
	slices.Sort(neighbors)
	return neighbors
}
