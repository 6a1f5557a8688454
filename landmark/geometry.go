package landmark

import (
	"github.com/golang/geo/r3"
)

// TetrahedronVolume returns the signed volume of the tetrahedron (v0, v1, v2, v3):
// ((v1-v0) x (v2-v0)) . (v3-v0) / 6. Four coplanar points give zero.
func TetrahedronVolume(v0, v1, v2, v3 r3.Vector) float64 {
	return v1.Sub(v0).Cross(v2.Sub(v0)).Dot(v3.Sub(v0)) / 6.0
}

// Centroid returns the arithmetic mean of the given points.
// It returns the zero vector for an empty argument list.
func Centroid(vs ...r3.Vector) r3.Vector {
	if len(vs) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, v := range vs {
		sum = sum.Add(v)
	}
	return sum.Mul(1.0 / float64(len(vs)))
}

// FrameAxes builds the marker's local frame from its first three vertices:
// x along edge v0->v1, y along edge v1->v2, z = x cross y.
//
// x and y are not forced perpendicular; the frame is orthonormal only when the
// two edges already are. Zero-length edges normalize to the zero vector.
func FrameAxes(v0, v1, v2 r3.Vector) (x, y, z r3.Vector) {
	x = v1.Sub(v0).Normalize()
	y = v2.Sub(v1).Normalize()
	z = x.Cross(y).Normalize()
	return x, y, z
}

// RotationMatrix is a row-major 3x3 matrix.
type RotationMatrix [3][3]float64

// FromColumns assembles a matrix whose columns are c0, c1, c2.
func FromColumns(c0, c1, c2 r3.Vector) RotationMatrix {
	return RotationMatrix{
		{c0.X, c1.X, c2.X},
		{c0.Y, c1.Y, c2.Y},
		{c0.Z, c1.Z, c2.Z},
	}
}

// Column returns column i as a vector.
func (m RotationMatrix) Column(i int) r3.Vector {
	return r3.Vector{X: m[0][i], Y: m[1][i], Z: m[2][i]}
}

// Trace returns the sum of the diagonal.
func (m RotationMatrix) Trace() float64 {
	return m[0][0] + m[1][1] + m[2][2]
}

// MulVec returns m * v.
func (m RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}
