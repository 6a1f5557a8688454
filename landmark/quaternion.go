package landmark

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is an orientation in (x, y, z, w) order, w being the scalar part.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuaternion returns the no-rotation quaternion.
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// Number converts q to a gonum quaternion.
func (q Quaternion) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// QuaternionFromNumber converts a gonum quaternion.
func QuaternionFromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Norm returns |q|.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.Number())
}

// Normalized returns q scaled to unit length. The zero quaternion maps to identity.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return IdentityQuaternion()
	}
	return QuaternionFromNumber(quat.Scale(1/n, q.Number()))
}

// Conj returns the conjugate of q.
func (q Quaternion) Conj() Quaternion {
	return QuaternionFromNumber(quat.Conj(q.Number()))
}

// Rotate applies q to v as q*v*conj(q). q is expected to be unit length.
func (q Quaternion) Rotate(v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	n := q.Number()
	r := quat.Mul(quat.Mul(n, p), quat.Conj(n))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Matrix returns the rotation matrix of a unit quaternion.
func (q Quaternion) Matrix() RotationMatrix {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return RotationMatrix{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// Yaw returns the heading in radians of the rotated x-axis projected on the xy-plane.
func (q Quaternion) Yaw() float64 {
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// ApproxEqual reports whether q and o describe the same rotation within eps,
// treating q and -q as equal.
func (q Quaternion) ApproxEqual(o Quaternion, eps float64) bool {
	same := math.Abs(q.X-o.X) <= eps && math.Abs(q.Y-o.Y) <= eps &&
		math.Abs(q.Z-o.Z) <= eps && math.Abs(q.W-o.W) <= eps
	flipped := math.Abs(q.X+o.X) <= eps && math.Abs(q.Y+o.Y) <= eps &&
		math.Abs(q.Z+o.Z) <= eps && math.Abs(q.W+o.W) <= eps
	return same || flipped
}

// QuaternionFromMatrix converts a rotation matrix with Shepperd's method.
//
// When the trace is positive w is recovered first; otherwise the largest
// diagonal element picks the component to recover first, which keeps the
// square root argument away from zero. The result is not renormalized, so a
// matrix that is not orthonormal yields a quaternion that is not unit length.
func QuaternionFromMatrix(m RotationMatrix) Quaternion {
	if t := m.Trace(); t > 0 {
		s := math.Sqrt(t + 1.0)
		w := 0.5 * s
		s = 0.5 / s
		return Quaternion{
			X: (m[2][1] - m[1][2]) * s,
			Y: (m[0][2] - m[2][0]) * s,
			Z: (m[1][0] - m[0][1]) * s,
			W: w,
		}
	}

	i := 0
	if m[1][1] > m[0][0] {
		i = 1
	}
	if m[2][2] > m[i][i] {
		i = 2
	}
	j := (i + 1) % 3
	k := (j + 1) % 3

	var v [3]float64
	s := math.Sqrt(m[i][i] - m[j][j] - m[k][k] + 1.0)
	v[i] = 0.5 * s
	s = 0.5 / s
	w := (m[k][j] - m[j][k]) * s
	v[j] = (m[j][i] + m[i][j]) * s
	v[k] = (m[k][i] + m[i][k]) * s

	return Quaternion{X: v[0], Y: v[1], Z: v[2], W: w}
}
