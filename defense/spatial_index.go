package defense

import (
	"math"

	"github.com/skyshield/skyshield/sim"
)

// SpatialIndex buckets threat ids into a uniform ground-plane grid so a
// battery's coverage query touches only local cells instead of every
// threat. Rebuilt once per tick from current threat positions.
type SpatialIndex struct {
	cellSize float64
	cells    map[cellKey][]int
}

type cellKey struct {
	X, Z int
}

func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int),
	}
}

func (g *SpatialIndex) key(pos sim.Vec3) cellKey {
	return cellKey{
		X: int(math.Floor(pos.X / g.cellSize)),
		Z: int(math.Floor(pos.Z / g.cellSize)),
	}
}

// Rebuild clears the grid and re-inserts all active threats.
func (g *SpatialIndex) Rebuild(threats []*sim.Threat) {
	for k := range g.cells {
		delete(g.cells, k)
	}
	for _, t := range threats {
		if !t.Active {
			continue
		}
		k := g.key(t.Pos)
		g.cells[k] = append(g.cells[k], t.ID)
	}
}

// Query returns the union of threat ids in every cell within
// ceil(radius/cellSize) of the position's cell. Callers must still
// perform exact range checks on the result.
func (g *SpatialIndex) Query(pos sim.Vec3, radius float64) []int {
	center := g.key(pos)
	reach := int(math.Ceil(radius / g.cellSize))

	var result []int
	for dx := -reach; dx <= reach; dx++ {
		for dz := -reach; dz <= reach; dz++ {
			k := cellKey{X: center.X + dx, Z: center.Z + dz}
			if ids, ok := g.cells[k]; ok {
				result = append(result, ids...)
			}
		}
	}
	return result
}

// Size returns the number of occupied cells (diagnostics).
func (g *SpatialIndex) Size() int {
	return len(g.cells)
}
