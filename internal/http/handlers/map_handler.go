// README: Map handlers for viewport clustering, expansion, and leaves.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pulse/internal/cluster"
	"pulse/internal/http/middleware"
	"pulse/internal/modules/signal"
	"pulse/internal/modules/visibility"
	"pulse/internal/types"
)

type MapHandler struct {
	visibility *visibility.Service
	positions  signal.PositionProvider
}

func NewMapHandler(vis *visibility.Service, positions signal.PositionProvider) *MapHandler {
	return &MapHandler{visibility: vis, positions: positions}
}

type clusterEntry struct {
	Cluster    bool     `json:"cluster"`
	ID         int      `json:"id,omitempty"`
	PointCount int      `json:"point_count,omitempty"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	UserID     types.ID `json:"user_id,omitempty"`
	SignalID   types.ID `json:"signal_id,omitempty"`
}

// visibleIndex rebuilds the cluster index over the caller's current
// candidate set. The set is ordered deterministically, so ids are stable
// across the clusters/expansion/leaves calls of one map interaction.
func (h *MapHandler) visibleIndex(c *gin.Context) (*cluster.Index, []visibility.Candidate) {
	uid := middleware.CallerUID(c)

	pos := viewerPosition(c, h.positions)
	candidates := h.visibility.Nearby(c.Request.Context(), types.ID(uid), pos)

	points := make([]cluster.Point, len(candidates))
	for i, cand := range candidates {
		points[i] = cluster.Point{Lat: cand.Position.Lat, Lng: cand.Position.Lng}
	}
	return cluster.Build(points), candidates
}

func (h *MapHandler) Clusters(c *gin.Context) {
	bounds, ok := parseBounds(c)
	if !ok {
		return
	}
	zoom, err := strconv.Atoi(c.DefaultQuery("zoom", "0"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid zoom")
		return
	}

	idx, candidates := h.visibleIndex(c)
	entries := make([]clusterEntry, 0)
	for _, cl := range idx.Query(bounds, zoom) {
		e := clusterEntry{
			Cluster: cl.IsCluster,
			Lat:     cl.Lat,
			Lng:     cl.Lng,
		}
		if cl.IsCluster {
			e.ID = cl.ID
			e.PointCount = cl.PointCount
		} else if cl.PointIndex >= 0 && cl.PointIndex < len(candidates) {
			e.UserID = candidates[cl.PointIndex].UserID
			e.SignalID = candidates[cl.PointIndex].SignalID
		}
		entries = append(entries, e)
	}
	writeJSON(c, http.StatusOK, map[string]any{"clusters": entries})
}

func (h *MapHandler) Expansion(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid cluster id")
		return
	}
	idx, _ := h.visibleIndex(c)
	writeJSON(c, http.StatusOK, map[string]any{"zoom": idx.ExpansionZoom(id)})
}

func (h *MapHandler) Leaves(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid cluster id")
		return
	}
	idx, candidates := h.visibleIndex(c)

	entries := make([]clusterEntry, 0)
	for _, pi := range idx.Leaves(id) {
		if pi < 0 || pi >= len(candidates) {
			continue
		}
		cand := candidates[pi]
		entries = append(entries, clusterEntry{
			Lat:      cand.Position.Lat,
			Lng:      cand.Position.Lng,
			UserID:   cand.UserID,
			SignalID: cand.SignalID,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"leaves": entries})
}

func parseBounds(c *gin.Context) (cluster.Bounds, bool) {
	var b cluster.Bounds
	var err error
	read := func(name string) float64 {
		v, e := strconv.ParseFloat(c.Query(name), 64)
		if e != nil && err == nil {
			err = e
		}
		return v
	}
	b.West = read("west")
	b.South = read("south")
	b.East = read("east")
	b.North = read("north")
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid viewport bounds")
		return cluster.Bounds{}, false
	}
	return b, true
}
