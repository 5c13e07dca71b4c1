// README: Zoom-leveled grid clustering index for map marker aggregation.
package cluster

import (
	"math"
)

const (
	// MinZoom and MaxZoom bound the zoom levels the index materializes.
	// Queries outside the range are clamped, never rejected.
	MinZoom = 0
	MaxZoom = 16
	// clusterRadiusPx is the merge radius in screen pixels at a given zoom.
	clusterRadiusPx = 60.0
	// tileExtent is the nominal tile size the radius is expressed against.
	tileExtent = 256.0
)

// Point is one input marker. Callers keep their own payload and join back
// through the index they passed to Build.
type Point struct {
	Lat float64
	Lng float64
}

// Cluster is one query result: either an aggregate or a standalone point.
type Cluster struct {
	IsCluster bool
	// ID is the cluster id, usable with ExpansionZoom and Leaves. Zero value
	// for standalone points.
	ID int
	// PointCount is the number of leaves under a cluster, 1 for a standalone.
	PointCount int
	// PointIndex is the index into the Build input for a standalone point,
	// -1 for a cluster.
	PointIndex int
	Lat        float64
	Lng        float64
}

// Bounds is a viewport as [west, south, east, north]. West greater than
// east means the viewport crosses the antimeridian.
type Bounds struct {
	West  float64
	South float64
	East  float64
	North float64
}

type node struct {
	x, y      float64 // projected, unit square
	numPoints int
	pointIdx  int   // index into points for single-point nodes, else -1
	children  []int // indices into the next deeper level
	id        int   // cluster id, 0 for single-point nodes
}

type ref struct {
	zoom int
	idx  int
}

// Index is a rebuildable snapshot of one point set, clustered at every zoom
// from MinZoom to MaxZoom. It holds no hidden mutable state; rebuild it
// whenever the point set changes.
type Index struct {
	points []Point
	levels map[int][]node
	refs   map[int]ref // cluster id -> deepest level where it was formed
	nextID int
}

// Build constructs the index. An empty or nil point set yields a usable
// index whose queries return empty results. Co-located points are kept as
// distinct leaves.
func Build(points []Point) *Index {
	idx := &Index{
		points: points,
		levels: make(map[int][]node),
		refs:   make(map[int]ref),
		nextID: 1,
	}

	base := make([]node, len(points))
	for i, p := range points {
		x, y := project(p.Lat, p.Lng)
		base[i] = node{x: x, y: y, numPoints: 1, pointIdx: i}
	}
	idx.levels[MaxZoom] = base

	for z := MaxZoom - 1; z >= MinZoom; z-- {
		idx.levels[z] = idx.clusterLevel(z)
	}
	return idx
}

// clusterLevel merges the nodes of level z+1 into the nodes of level z.
// Nodes are visited in index order, which makes the output deterministic
// for a fixed input ordering.
func (idx *Index) clusterLevel(z int) []node {
	prev := idx.levels[z+1]
	r := clusterRadiusPx / (tileExtent * math.Exp2(float64(z)))

	grid := make(map[[2]int][]int, len(prev))
	for i, n := range prev {
		c := cellOf(n.x, n.y, r)
		grid[c] = append(grid[c], i)
	}

	assigned := make([]bool, len(prev))
	var out []node

	for i := range prev {
		if assigned[i] {
			continue
		}
		n := prev[i]

		var members []int
		c := cellOf(n.x, n.y, r)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, j := range grid[[2]int{c[0] + dx, c[1] + dy}] {
					if assigned[j] {
						continue
					}
					m := prev[j]
					if sqDist(n.x, n.y, m.x, m.y) <= r*r {
						members = append(members, j)
					}
				}
			}
		}

		if len(members) <= 1 {
			// Nothing merged: carry the node through unchanged so it stays
			// reachable at shallower zooms.
			assigned[i] = true
			carried := n
			carried.children = []int{i}
			out = append(out, carried)
			continue
		}

		var sumX, sumY float64
		total := 0
		for _, j := range members {
			assigned[j] = true
			m := prev[j]
			sumX += m.x * float64(m.numPoints)
			sumY += m.y * float64(m.numPoints)
			total += m.numPoints
		}

		id := idx.nextID
		idx.nextID++
		idx.refs[id] = ref{zoom: z, idx: len(out)}
		out = append(out, node{
			x:         sumX / float64(total),
			y:         sumY / float64(total),
			numPoints: total,
			pointIdx:  -1,
			children:  members,
			id:        id,
		})
	}
	return out
}

// Query returns the clusters and standalone points inside bounds at the
// given zoom. Zoom is clamped to [MinZoom, MaxZoom]; at MaxZoom every
// result is a standalone point.
func (idx *Index) Query(b Bounds, zoom int) []Cluster {
	z := clampZoom(zoom)
	nodes := idx.levels[z]
	out := []Cluster{}
	for _, n := range nodes {
		lat, lng := unproject(n.x, n.y)
		if n.numPoints == 1 {
			// Use the exact original coordinates for standalone points.
			p := idx.points[n.pointIdx]
			lat, lng = p.Lat, p.Lng
		}
		if !b.contains(lat, lng) {
			continue
		}
		if n.numPoints == 1 {
			out = append(out, Cluster{
				PointCount: 1,
				PointIndex: n.pointIdx,
				Lat:        lat,
				Lng:        lng,
			})
			continue
		}
		out = append(out, Cluster{
			IsCluster:  true,
			ID:         n.id,
			PointCount: n.numPoints,
			PointIndex: -1,
			Lat:        lat,
			Lng:        lng,
		})
	}
	return out
}

// ExpansionZoom returns the smallest zoom at which the cluster splits into
// more than one marker. Unknown ids degrade to MaxZoom rather than failing,
// since stale ids arrive routinely after a rebuild.
func (idx *Index) ExpansionZoom(clusterID int) int {
	r, ok := idx.refs[clusterID]
	if !ok {
		return MaxZoom
	}
	return clampZoom(r.zoom + 1)
}

// Leaves returns the indices (into the Build input) of every point under a
// cluster, at any nesting depth. Unknown ids yield an empty slice.
func (idx *Index) Leaves(clusterID int) []int {
	r, ok := idx.refs[clusterID]
	if !ok {
		return []int{}
	}
	out := []int{}
	idx.collectLeaves(r.zoom, r.idx, &out)
	return out
}

func (idx *Index) collectLeaves(zoom, nodeIdx int, out *[]int) {
	n := idx.levels[zoom][nodeIdx]
	if n.numPoints == 1 {
		*out = append(*out, n.pointIdx)
		return
	}
	for _, child := range n.children {
		idx.collectLeaves(zoom+1, child, out)
	}
}

func (b Bounds) contains(lat, lng float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.West <= b.East {
		return lng >= b.West && lng <= b.East
	}
	// Viewport crosses the antimeridian.
	return lng >= b.West || lng <= b.East
}

func clampZoom(z int) int {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

func cellOf(x, y, r float64) [2]int {
	return [2]int{int(math.Floor(x / r)), int(math.Floor(y / r))}
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}

// project maps WGS84 degrees onto the web-mercator unit square.
func project(lat, lng float64) (x, y float64) {
	x = lng/360 + 0.5
	sin := math.Sin(lat * math.Pi / 180)
	y = 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	// Latitudes beyond the mercator limit project to the square's edge.
	if y < 0 || math.IsNaN(y) {
		y = 0
	} else if y > 1 {
		y = 1
	}
	return x, y
}

func unproject(x, y float64) (lat, lng float64) {
	lng = (x - 0.5) * 360
	y2 := (0.5 - y) * 2 * math.Pi
	lat = math.Atan(math.Sinh(y2)) * 180 / math.Pi
	return lat, lng
}
