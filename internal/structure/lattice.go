package structure

import (
	"fmt"
	"math"
)

// Vec3 is a 3-vector in either fractional or Cartesian space.
type Vec3 [3]float64

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }

// Scale returns v * f.
func (v Vec3) Scale(f float64) Vec3 { return Vec3{v[0] * f, v[1] * f, v[2] * f} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Lattice holds the three lattice vectors as matrix rows, in Å.
type Lattice struct {
	Matrix [3]Vec3
	inv    [3]Vec3
}

// NewLattice builds a lattice from row vectors a, b, c. The vectors must be
// finite and linearly independent.
func NewLattice(matrix [3]Vec3) (*Lattice, error) {
	for i, v := range matrix {
		if !v.IsFinite() {
			return nil, fmt.Errorf("lattice vector %d is not finite: %v", i+1, v)
		}
	}
	l := &Lattice{Matrix: matrix}
	det := l.determinant()
	if math.Abs(det) < 1e-10 {
		return nil, fmt.Errorf("lattice vectors are linearly dependent (det=%g)", det)
	}
	a, b, c := matrix[0], matrix[1], matrix[2]
	// Rows of the inverse transpose are the reciprocal vectors divided by det.
	bc, ca, ab := b.Cross(c), c.Cross(a), a.Cross(b)
	for i := 0; i < 3; i++ {
		l.inv[i] = Vec3{bc[i] / det, ca[i] / det, ab[i] / det}
	}
	return l, nil
}

// LatticeFromParameters builds a lattice from lengths (Å) and angles
// (degrees). Vector c lies along z and a lies in the xz plane.
func LatticeFromParameters(a, b, c, alpha, beta, gamma float64) (*Lattice, error) {
	if a <= 0 || b <= 0 || c <= 0 {
		return nil, fmt.Errorf("lattice lengths must be positive (a=%g b=%g c=%g)", a, b, c)
	}
	ar, br, gr := deg2rad(alpha), deg2rad(beta), deg2rad(gamma)
	cosA, cosB, cosG := math.Cos(ar), math.Cos(br), math.Cos(gr)
	sinA, sinB := math.Sin(ar), math.Sin(br)
	if sinA == 0 || sinB == 0 {
		return nil, fmt.Errorf("degenerate lattice angles (alpha=%g beta=%g)", alpha, beta)
	}

	val := (cosA*cosB - cosG) / (sinA * sinB)
	val = math.Max(-1, math.Min(1, val))
	gammaStar := math.Acos(val)

	return NewLattice([3]Vec3{
		{a * sinB, 0, a * cosB},
		{-b * sinA * math.Cos(gammaStar), b * sinA * math.Sin(gammaStar), b * cosA},
		{0, 0, c},
	})
}

func (l *Lattice) determinant() float64 {
	return l.Matrix[0].Dot(l.Matrix[1].Cross(l.Matrix[2]))
}

// Abc returns the lattice vector lengths.
func (l *Lattice) Abc() Vec3 {
	return Vec3{l.Matrix[0].Norm(), l.Matrix[1].Norm(), l.Matrix[2].Norm()}
}

// Angles returns alpha, beta and gamma in degrees.
func (l *Lattice) Angles() Vec3 {
	a, b, c := l.Matrix[0], l.Matrix[1], l.Matrix[2]
	return Vec3{angle(b, c), angle(a, c), angle(a, b)}
}

// Volume returns the cell volume in Å³.
func (l *Lattice) Volume() float64 { return math.Abs(l.determinant()) }

// CartCoords converts fractional coordinates to Cartesian.
func (l *Lattice) CartCoords(f Vec3) Vec3 {
	var out Vec3
	for i := 0; i < 3; i++ {
		out = out.Add(l.Matrix[i].Scale(f[i]))
	}
	return out
}

// FracCoords converts Cartesian coordinates to fractional.
func (l *Lattice) FracCoords(cart Vec3) Vec3 {
	var out Vec3
	for i := 0; i < 3; i++ {
		out = out.Add(l.inv[i].Scale(cart[i]))
	}
	return out
}

// Scaled returns a lattice whose vectors are multiplied by the given
// per-axis factors.
func (l *Lattice) Scaled(f Vec3) (*Lattice, error) {
	m := l.Matrix
	for i := 0; i < 3; i++ {
		m[i] = m[i].Scale(f[i])
	}
	return NewLattice(m)
}

func angle(u, v Vec3) float64 {
	cos := u.Dot(v) / (u.Norm() * v.Norm())
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
