package formats

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

// symOp is an affine operation on fractional coordinates: x' = R·x + t.
type symOp struct {
	rot   [3][3]float64
	trans structure.Vec3
}

var identityOp = symOp{rot: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}

func (op symOp) apply(v structure.Vec3) structure.Vec3 {
	var out structure.Vec3
	for i := 0; i < 3; i++ {
		out[i] = op.rot[i][0]*v[0] + op.rot[i][1]*v[1] + op.rot[i][2]*v[2] + op.trans[i]
	}
	return out
}

// parseSymOp parses a Jones-faithful string such as "-x+1/2, y, z-1/4".
// Variables may be written x/y/z or a/b/c in either case.
func parseSymOp(s string) (symOp, error) {
	s = strings.Trim(strings.TrimSpace(s), "'\"")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return symOp{}, fmt.Errorf("symmetry operation %q: expected 3 components", s)
	}
	var op symOp
	for i, part := range parts {
		row, t, err := parseSymComponent(part)
		if err != nil {
			return symOp{}, fmt.Errorf("symmetry operation %q: %w", s, err)
		}
		op.rot[i] = row
		op.trans[i] = t
	}
	return op, nil
}

// parseSymComponent parses one linear expression like "-x+y+1/3" or "0.5-z".
func parseSymComponent(expr string) (row [3]float64, trans float64, err error) {
	expr = strings.ToLower(strings.ReplaceAll(expr, " ", ""))
	if expr == "" {
		return row, 0, fmt.Errorf("empty component")
	}

	// Split into signed terms.
	var terms []string
	start := 0
	for i := 1; i < len(expr); i++ {
		if expr[i] == '+' || expr[i] == '-' {
			terms = append(terms, expr[start:i])
			start = i
		}
	}
	terms = append(terms, expr[start:])

	for _, term := range terms {
		sign := 1.0
		switch {
		case strings.HasPrefix(term, "-"):
			sign = -1
			term = term[1:]
		case strings.HasPrefix(term, "+"):
			term = term[1:]
		}
		if term == "" {
			return row, 0, fmt.Errorf("dangling sign in %q", expr)
		}

		axis := -1
		last := term[len(term)-1]
		switch last {
		case 'x', 'a':
			axis = 0
		case 'y', 'b':
			axis = 1
		case 'z', 'c':
			axis = 2
		}
		if axis < 0 {
			v, err := parseFraction(term)
			if err != nil {
				return row, 0, err
			}
			trans += sign * v
			continue
		}

		coef := 1.0
		if c := strings.TrimSuffix(term[:len(term)-1], "*"); c != "" {
			v, err := parseFraction(c)
			if err != nil {
				return row, 0, err
			}
			coef = v
		}
		row[axis] += sign * coef
	}
	return row, trans, nil
}

func parseFraction(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", s)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("invalid number %q", s)
		}
		return n / d, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

// wrapFrac maps each coordinate into [0, 1).
func wrapFrac(v structure.Vec3) structure.Vec3 {
	for i := range v {
		v[i] -= math.Floor(v[i])
		if v[i] >= 1-1e-12 {
			v[i] = 0
		}
	}
	return v
}

// periodicDistance returns the largest per-axis fractional separation
// between a and b under periodic boundary conditions.
func periodicDistance(a, b structure.Vec3) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		diff -= math.Round(diff)
		d = math.Max(d, math.Abs(diff))
	}
	return d
}
