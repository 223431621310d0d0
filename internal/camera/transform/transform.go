// Package transform holds the 4x4 homogeneous matrix used for camera poses
// and projections.
//
// A Transform is stored row-major: index r*4+c holds element M(r+1)(c+1), so
// the 16 values read M11,M12,M13,M14, M21,...,M44. This is also the order
// consumers receive when the matrix crosses the package boundary.
package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a matrix has no inverse.
var ErrSingular = errors.New("transform: matrix is singular")

// Transform is a 4x4 matrix in row-major order.
type Transform [16]float32

// Identity is the 4x4 identity matrix.
var Identity = Transform{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// FromRowMajor builds a Transform from 16 row-major values.
func FromRowMajor(values []float32) (Transform, error) {
	var t Transform
	if len(values) != 16 {
		return t, fmt.Errorf("transform: expected 16 values, got %d", len(values))
	}
	copy(t[:], values)
	return t, nil
}

// At returns the element at zero-based row r and column c.
func (t Transform) At(r, c int) float32 {
	return t[r*4+c]
}

// Set assigns the element at zero-based row r and column c.
func (t *Transform) Set(r, c int, v float32) {
	t[r*4+c] = v
}

// Floats returns a fresh row-major copy of the matrix.
func (t Transform) Floats() []float32 {
	out := make([]float32, 16)
	copy(out, t[:])
	return out
}

// Transpose returns the transpose of t.
func (t Transform) Transpose() Transform {
	var out Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = t[r*4+c]
		}
	}
	return out
}

// Mul returns the matrix product t·o.
func (t Transform) Mul(o Transform) Transform {
	var out Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += t[r*4+k] * o[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// Inverse returns the inverse of t. It returns ErrSingular when t cannot be
// inverted.
func (t Transform) Inverse() (Transform, error) {
	var inv mat.Dense
	if err := inv.Inverse(t.dense()); err != nil {
		// gonum reports near-singular input as a Condition error but still
		// produces a result; anything else means no inverse exists.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Identity, ErrSingular
		}
	}
	var out Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			v := inv.At(r, c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Identity, ErrSingular
			}
			out[r*4+c] = float32(v)
		}
	}
	return out, nil
}

// NegateRow returns a copy of t with every component of zero-based row r
// negated. Negating the third row converts a right-handed pose into the
// left-handed convention used by the renderer.
func (t Transform) NegateRow(r int) Transform {
	out := t
	for c := 0; c < 4; c++ {
		out[r*4+c] = -out[r*4+c]
	}
	return out
}

// ApplyPoint transforms the point (x, y, z, 1) using column-vector
// convention and returns the dehomogenised result.
func (t Transform) ApplyPoint(x, y, z float32) (wx, wy, wz float32) {
	wx = t[0]*x + t[1]*y + t[2]*z + t[3]
	wy = t[4]*x + t[5]*y + t[6]*z + t[7]
	wz = t[8]*x + t[9]*y + t[10]*z + t[11]
	w := t[12]*x + t[13]*y + t[14]*z + t[15]
	if w != 0 && w != 1 {
		wx, wy, wz = wx/w, wy/w, wz/w
	}
	return
}

// IsFinite reports whether every element is neither NaN nor infinite.
func (t Transform) IsFinite() bool {
	for _, v := range t {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// IsIdentity reports whether t equals Identity exactly.
func (t Transform) IsIdentity() bool {
	return t == Identity
}

// EqualApprox reports whether every element of t is within tol of o.
func (t Transform) EqualApprox(o Transform, tol float32) bool {
	for i := range t {
		d := t[i] - o[i]
		if d < -tol || d > tol {
			return false
		}
	}
	return true
}

// IsRigid reports whether t is a rigid transform in column-vector
// convention: the upper-left 3x3 block is orthonormal with determinant ±1
// and the last row is 0 0 0 1. Reflections are accepted so handedness
// corrected poses still validate.
func (t Transform) IsRigid(tol float64) bool {
	if !t.IsFinite() {
		return false
	}
	if t[12] != 0 || t[13] != 0 || t[14] != 0 || math.Abs(float64(t[15])-1) > tol {
		return false
	}

	rot := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rot.Set(r, c, float64(t[r*4+c]))
		}
	}
	if math.Abs(math.Abs(mat.Det(rot))-1) > tol {
		return false
	}

	var gram mat.Dense
	gram.Mul(rot.T(), rot)
	eye := mat.NewDiagDense(3, []float64{1, 1, 1})
	return mat.EqualApprox(&gram, eye, tol)
}

// String formats the matrix one row per line.
func (t Transform) String() string {
	return fmt.Sprintf("[%g %g %g %g; %g %g %g %g; %g %g %g %g; %g %g %g %g]",
		t[0], t[1], t[2], t[3],
		t[4], t[5], t[6], t[7],
		t[8], t[9], t[10], t[11],
		t[12], t[13], t[14], t[15])
}

func (t Transform) dense() *mat.Dense {
	data := make([]float64, 16)
	for i, v := range t {
		data[i] = float64(v)
	}
	return mat.NewDense(4, 4, data)
}
