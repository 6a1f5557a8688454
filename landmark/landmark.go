package landmark

import "github.com/golang/geo/r3"

// DefaultVolumeThreshold is the tetrahedron volume above which a marker is
// rejected as non-planar.
const DefaultVolumeThreshold = 1e-5

// markerVertexCount is the only vertex count accepted for a pose marker.
const markerVertexCount = 4

// ParseLandmarks extracts a Landmark from every polygon in m that is a pose
// marker of targetSubtype, has exactly four vertices and is near planar.
//
// Polygons failing any check are skipped without error; the result keeps the
// map's polygon order and may contain duplicate ids. Vertices are expected in
// counterclockwise order. Only a volume strictly above volumeThreshold
// rejects a polygon, so reversed winding (negative volume) is accepted.
//
// m is only read. A nil map yields nil.
func ParseLandmarks(m *Map, targetSubtype string, volumeThreshold float64) []Landmark {
	if m == nil {
		return nil
	}

	var landmarks []Landmark
	for i := range m.Polygons {
		poly := &m.Polygons[i]

		if poly.AttributeOr(AttrType, MissingAttribute) != PoseMarkerType {
			continue
		}
		if poly.AttributeOr(AttrSubtype, MissingAttribute) != targetSubtype {
			continue
		}

		pose, ok := markerPose(poly.Vertices, volumeThreshold)
		if !ok {
			continue
		}

		landmarks = append(landmarks, Landmark{
			ID:   poly.AttributeOr(AttrMarkerID, MissingAttribute),
			Pose: pose,
		})
	}

	return landmarks
}

// ExtractLandmarks is ParseLandmarks with DefaultVolumeThreshold.
func ExtractLandmarks(m *Map, targetSubtype string) []Landmark {
	return ParseLandmarks(m, targetSubtype, DefaultVolumeThreshold)
}

// IsPoseMarker reports whether p passes the type and subtype checks.
func IsPoseMarker(p *Polygon, targetSubtype string) bool {
	return p.AttributeOr(AttrType, MissingAttribute) == PoseMarkerType &&
		p.AttributeOr(AttrSubtype, MissingAttribute) == targetSubtype
}

// markerPose validates the vertex list and computes the marker pose.
func markerPose(vertices []Vertex, volumeThreshold float64) (Pose, bool) {
	if len(vertices) != markerVertexCount {
		return Pose{}, false
	}

	v0, v1, v2, v3 := vertices[0].Vec(), vertices[1].Vec(), vertices[2].Vec(), vertices[3].Vec()
	if TetrahedronVolume(v0, v1, v2, v3) > volumeThreshold {
		return Pose{}, false
	}

	x, y, z := FrameAxes(v0, v1, v2)
	return Pose{
		Position:    PositionFromVec(Centroid(v0, v1, v2, v3)),
		Orientation: QuaternionFromMatrix(FromColumns(x, y, z)),
	}, true
}

// vertexVecs converts a vertex list to vectors.
func vertexVecs(vertices []Vertex) []r3.Vector {
	vs := make([]r3.Vector, len(vertices))
	for i, v := range vertices {
		vs[i] = v.Vec()
	}
	return vs
}
