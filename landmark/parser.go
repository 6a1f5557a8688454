package landmark

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ParseMapFile reads and parses a JSON map document
func ParseMapFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseMapJSON(data)
}

// ParseMapJSON parses a JSON map document
func ParseMapJSON(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &m, nil
}

// Footprint returns the polygon projected onto the xy-plane as a closed ring.
func (p *Polygon) Footprint() orb.Ring {
	if len(p.Vertices) == 0 {
		return nil
	}
	ring := make(orb.Ring, 0, len(p.Vertices)+1)
	for _, v := range p.Vertices {
		ring = append(ring, orb.Point{v[0], v[1]})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// PlanarArea returns the unsigned area of the xy footprint. Ring area from
// planar is signed by winding.
func (p *Polygon) PlanarArea() float64 {
	ring := p.Footprint()
	if len(ring) < 4 {
		return 0
	}
	return math.Abs(planar.Area(ring))
}

// Centroid3D returns the mean of the polygon's vertices.
func (p *Polygon) Centroid3D() Position {
	return PositionFromVec(Centroid(vertexVecs(p.Vertices)...))
}

// MapSummary provides a summary of map contents
type MapSummary struct {
	Name             string         `json:"name"`
	Version          int            `json:"version"`
	PolygonCount     int            `json:"polygonCount"`
	PoseMarkerCount  int            `json:"poseMarkerCount"`
	Subtypes         map[string]int `json:"subtypes"`
	SubtypeNames     []string       `json:"subtypeNames"`
	MalformedMarkers int            `json:"malformedMarkers"` // pose markers without exactly four vertices
}

// Summarize extracts key information from a map
func Summarize(m *Map) MapSummary {
	summary := MapSummary{Subtypes: make(map[string]int)}
	if m == nil {
		return summary
	}

	summary.Name = m.MetaData.Name
	summary.Version = m.MetaData.Version
	summary.PolygonCount = len(m.Polygons)

	for i := range m.Polygons {
		poly := &m.Polygons[i]
		if poly.AttributeOr(AttrType, MissingAttribute) != PoseMarkerType {
			continue
		}
		summary.PoseMarkerCount++
		summary.Subtypes[poly.AttributeOr(AttrSubtype, MissingAttribute)]++
		if len(poly.Vertices) != markerVertexCount {
			summary.MalformedMarkers++
		}
	}

	for name := range summary.Subtypes {
		summary.SubtypeNames = append(summary.SubtypeNames, name)
	}
	sort.Strings(summary.SubtypeNames)

	return summary
}

// HasPolygons returns true if the map contains at least one polygon
func HasPolygons(m *Map) bool {
	return m != nil && len(m.Polygons) > 0
}
