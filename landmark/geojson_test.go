package landmark

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLandmarkFeature(t *testing.T) {
	h := math.Sqrt2 / 2
	lm := Landmark{
		ID: "d1",
		Pose: Pose{
			Position:    Position{X: 1, Y: 2, Z: 3},
			Orientation: Quaternion{Z: h, W: h},
		},
	}

	f := LandmarkFeature("robot1", "dock", lm)
	assert.Equal(t, orb.Point{1, 2}, f.Geometry)
	assert.Equal(t, "d1", f.Properties.MustString(PropMarkerID))
	assert.Equal(t, "robot1", f.Properties.MustString(PropSourceID))
	assert.Equal(t, "dock", f.Properties.MustString(PropSubtype))
	assert.Equal(t, 3.0, f.Properties.MustFloat64(PropZ))
	assert.InDelta(t, 90.0, f.Properties.MustFloat64(PropYawDeg), 1e-9)
	assert.InDelta(t, h, f.Properties.MustFloat64("qw"), 1e-12)
}

func TestLandmarksToFeatureCollection(t *testing.T) {
	sets := []LandmarkSet{
		{SourceID: "a", Subtype: "dock", Landmarks: []Landmark{{ID: "a1"}, {ID: "a2"}}},
		{SourceID: "b", Subtype: "dock", Landmarks: []Landmark{}},
		{SourceID: "c", Subtype: "dock", Landmarks: []Landmark{{ID: "c1"}}},
	}

	fc := LandmarksToFeatureCollection(sets)
	require.Len(t, fc.Features, 3)

	var got []string
	for _, f := range fc.Features {
		got = append(got, f.Properties.MustString(PropMarkerID))
	}
	assert.Equal(t, []string{"a1", "a2", "c1"}, got)

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	decoded, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, decoded.Features, 3)
}

func TestMarkerFootprints(t *testing.T) {
	m := mapOf(
		marker(7, "dock", "d1", []Vertex{{0, 0, 0}, {2, 0, 0}, {2, 1, 0}, {0, 1, 0}}),
		marker(8, "dock", "bent", []Vertex{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 1}}),
		marker(9, "charger", "c1", unitSquare()),
		marker(10, "dock", "", unitSquare()),
	)

	fc := MarkerFootprints(m, "robot1", "dock", DefaultVolumeThreshold)
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	assert.Equal(t, int64(7), f.ID)
	poly, ok := f.Geometry.(orb.Polygon)
	require.True(t, ok, "geometry is %T", f.Geometry)
	assert.Equal(t, orb.Ring{{0, 0}, {2, 0}, {2, 1}, {0, 1}, {0, 0}}, poly[0])
	assert.Equal(t, "d1", f.Properties.MustString(PropMarkerID))
	assert.Equal(t, "robot1", f.Properties.MustString(PropSourceID))
	assert.InDelta(t, 2.0, f.Properties.MustFloat64(PropArea), 1e-12)

	assert.Equal(t, "none", fc.Features[1].Properties.MustString(PropMarkerID))

	assert.Empty(t, MarkerFootprints(nil, "robot1", "dock", DefaultVolumeThreshold).Features)
}

func TestMarkerFootprints_MatchesExtraction(t *testing.T) {
	m := mapOf(
		marker(1, "dock", "a", unitSquare()),
		marker(2, "dock", "b", []Vertex{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 3}}),
		marker(3, "dock", "c", unitSquare()[:3]),
		marker(4, "dock", "d", []Vertex{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, -3}}),
	)

	for _, thr := range []float64{DefaultVolumeThreshold, 0.5, 1} {
		lms := ParseLandmarks(m, "dock", thr)
		fc := MarkerFootprints(m, "s", "dock", thr)
		require.Len(t, fc.Features, len(lms), "threshold %v", thr)
		for i, f := range fc.Features {
			assert.Equal(t, lms[i].ID, f.Properties.MustString(PropMarkerID))
		}
	}
}

func TestMergeFeatureCollections(t *testing.T) {
	a := geojson.NewFeatureCollection()
	a.Append(geojson.NewFeature(orb.Point{0, 0}))
	b := geojson.NewFeatureCollection()
	b.Append(geojson.NewFeature(orb.Point{1, 1}))
	b.Append(geojson.NewFeature(orb.Point{2, 2}))

	merged := MergeFeatureCollections(a, nil, b)
	require.Len(t, merged.Features, 3)
	assert.Equal(t, orb.Point{2, 2}, merged.Features[2].Geometry)
	assert.Len(t, a.Features, 1, "inputs are not modified")
}
