package landmark

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSON property keys
const (
	PropMarkerID  = "markerId"
	PropSourceID  = "sourceId"
	PropSubtype   = "subtype"
	PropZ         = "z"
	PropYawDeg    = "yawDeg"
	PropArea      = "area"
	PropPolygonID = "polygonId"
)

// LandmarkFeature converts one landmark to a GeoJSON Point feature.
// GeoJSON positions are 2D here, so z and the orientation travel as properties.
func LandmarkFeature(sourceID, subtype string, lm Landmark) *geojson.Feature {
	p := lm.Pose.Position
	f := geojson.NewFeature(orb.Point{p.X, p.Y})
	f.Properties[PropMarkerID] = lm.ID
	f.Properties[PropSourceID] = sourceID
	f.Properties[PropSubtype] = subtype
	f.Properties[PropZ] = p.Z
	q := lm.Pose.Orientation
	f.Properties["qx"] = q.X
	f.Properties["qy"] = q.Y
	f.Properties["qz"] = q.Z
	f.Properties["qw"] = q.W
	f.Properties[PropYawDeg] = q.Yaw() * 180 / math.Pi
	return f
}

// LandmarksToFeatureCollection converts landmark sets to a FeatureCollection,
// preserving set order and landmark order within each set.
func LandmarksToFeatureCollection(sets []LandmarkSet) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, set := range sets {
		for _, lm := range set.Landmarks {
			fc.Append(LandmarkFeature(set.SourceID, set.Subtype, lm))
		}
	}
	return fc
}

// MarkerFootprints returns a Polygon feature for every marker in m that
// ParseLandmarks would accept, in map order.
func MarkerFootprints(m *Map, sourceID, targetSubtype string, volumeThreshold float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if m == nil {
		return fc
	}

	for i := range m.Polygons {
		poly := &m.Polygons[i]
		if !IsPoseMarker(poly, targetSubtype) {
			continue
		}
		if _, ok := markerPose(poly.Vertices, volumeThreshold); !ok {
			continue
		}

		f := geojson.NewFeature(orb.Polygon{poly.Footprint()})
		f.ID = poly.ID
		f.Properties[PropPolygonID] = poly.ID
		f.Properties[PropMarkerID] = poly.AttributeOr(AttrMarkerID, MissingAttribute)
		f.Properties[PropSourceID] = sourceID
		f.Properties[PropSubtype] = targetSubtype
		f.Properties[PropArea] = poly.PlanarArea()
		fc.Append(f)
	}
	return fc
}

// MergeFeatureCollections appends the features of every collection into one.
func MergeFeatureCollections(fcs ...*geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, fc := range fcs {
		if fc == nil {
			continue
		}
		out.Features = append(out.Features, fc.Features...)
	}
	return out
}
