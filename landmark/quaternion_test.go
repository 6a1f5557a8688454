package landmark

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

func TestTetrahedronVolume(t *testing.T) {
	o := r3.Vector{}
	tests := []struct {
		name string
		v3   r3.Vector
		want float64
	}{
		{"coplanar", r3.Vector{X: 0, Y: 1, Z: 0}, 0},
		{"above", r3.Vector{X: 0, Y: 1, Z: 1}, 1.0 / 6.0},
		{"below", r3.Vector{X: 0, Y: 1, Z: -1}, -1.0 / 6.0},
		{"tall", r3.Vector{X: 0, Y: 1, Z: 3}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TetrahedronVolume(o, xAxis, r3.Vector{X: 1, Y: 1}, tt.v3)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCentroid(t *testing.T) {
	assert.Equal(t, r3.Vector{}, Centroid())

	got := Centroid(r3.Vector{X: 1}, r3.Vector{Y: 2}, r3.Vector{Z: 3}, r3.Vector{X: -1, Y: -2, Z: 1})
	assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: 1}, got)
}

func TestFrameAxes(t *testing.T) {
	x, y, z := FrameAxes(r3.Vector{}, r3.Vector{X: 2}, r3.Vector{X: 2, Y: 3})
	assert.Equal(t, xAxis, x)
	assert.Equal(t, yAxis, y)
	assert.Equal(t, zAxis, z)

	// Zero-length first edge collapses x and z.
	x, _, z = FrameAxes(r3.Vector{X: 1}, r3.Vector{X: 1}, r3.Vector{X: 2, Y: 1})
	assert.Equal(t, r3.Vector{}, x)
	assert.Equal(t, r3.Vector{}, z)
}

func TestRotationMatrix_Columns(t *testing.T) {
	m := FromColumns(r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{X: 4, Y: 5, Z: 6}, r3.Vector{X: 7, Y: 8, Z: 9})

	assert.Equal(t, RotationMatrix{{1, 4, 7}, {2, 5, 8}, {3, 6, 9}}, m)
	assert.Equal(t, r3.Vector{X: 4, Y: 5, Z: 6}, m.Column(1))
	assert.Equal(t, 15.0, m.Trace())
	assert.Equal(t, r3.Vector{X: 4, Y: 5, Z: 6}, m.MulVec(yAxis))
}

func TestQuaternionFromMatrix_Branches(t *testing.T) {
	h := math.Sqrt2 / 2
	tests := []struct {
		name string
		m    RotationMatrix
		want Quaternion
	}{
		{"identity", RotationMatrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, IdentityQuaternion()},
		{"90 about z", RotationMatrix{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}, Quaternion{Z: h, W: h}},
		{"180 about x", RotationMatrix{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}}, Quaternion{X: 1}},
		{"180 about y", RotationMatrix{{-1, 0, 0}, {0, 1, 0}, {0, 0, -1}}, Quaternion{Y: 1}},
		{"180 about z", RotationMatrix{{-1, 0, 0}, {0, -1, 0}, {0, 0, 1}}, Quaternion{Z: 1}},
		{"zero matrix", RotationMatrix{}, Quaternion{X: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuaternionFromMatrix(tt.m)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("QuaternionFromMatrix() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQuaternion_MatrixRoundTrip(t *testing.T) {
	axes := []r3.Vector{
		{X: 1}, {Y: 1}, {Z: 1},
		{X: 1, Y: 1, Z: 1},
		{X: -0.3, Y: 0.8, Z: 0.2},
	}
	angles := []float64{0.1, math.Pi / 3, math.Pi / 2, 2.5, math.Pi}

	for _, axis := range axes {
		a := axis.Normalize()
		for _, angle := range angles {
			s := math.Sin(angle / 2)
			q := Quaternion{X: a.X * s, Y: a.Y * s, Z: a.Z * s, W: math.Cos(angle / 2)}

			got := QuaternionFromMatrix(q.Matrix())
			assert.True(t, q.ApproxEqual(got, 1e-9), "axis %v angle %v: got %+v want %+v", a, angle, got, q)
		}
	}
}

func TestQuaternion_Rotate(t *testing.T) {
	h := math.Sqrt2 / 2
	q := Quaternion{Z: h, W: h}

	got := q.Rotate(xAxis)
	assert.InDelta(t, 0, got.X, 1e-12)
	assert.InDelta(t, 1, got.Y, 1e-12)
	assert.InDelta(t, 0, got.Z, 1e-12)

	m := q.Matrix()
	v := r3.Vector{X: 0.3, Y: -2, Z: 5}
	if diff := cmp.Diff(m.MulVec(v), q.Rotate(v), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Rotate disagrees with Matrix:\n%s", diff)
	}
}

func TestQuaternion_Yaw(t *testing.T) {
	h := math.Sqrt2 / 2
	assert.InDelta(t, 0, IdentityQuaternion().Yaw(), 1e-12)
	assert.InDelta(t, math.Pi/2, Quaternion{Z: h, W: h}.Yaw(), 1e-12)
	assert.InDelta(t, math.Pi, math.Abs(Quaternion{Z: 1}.Yaw()), 1e-12)
}

func TestQuaternion_NormAndNormalized(t *testing.T) {
	q := Quaternion{X: 1, Y: 2, Z: 2, W: 4}
	assert.InDelta(t, 5, q.Norm(), 1e-12)
	assert.InDelta(t, 1, q.Normalized().Norm(), 1e-12)
	assert.Equal(t, IdentityQuaternion(), Quaternion{}.Normalized())
}

func TestQuaternion_ConjAndApproxEqual(t *testing.T) {
	q := Quaternion{X: 0.1, Y: -0.2, Z: 0.3, W: 0.9}
	assert.Equal(t, Quaternion{X: -0.1, Y: 0.2, Z: -0.3, W: 0.9}, q.Conj())

	neg := Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
	assert.True(t, q.ApproxEqual(neg, 1e-12))
	assert.False(t, q.ApproxEqual(q.Conj(), 1e-3))
}

func TestQuaternion_GonumConversion(t *testing.T) {
	q := Quaternion{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Number()
	assert.Equal(t, 4.0, n.Real)
	assert.Equal(t, 1.0, n.Imag)
	assert.Equal(t, q, QuaternionFromNumber(n))
}
