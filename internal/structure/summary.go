package structure

import (
	"fmt"
	"strings"
)

// Summary renders a human-readable description: formulas, lattice
// parameters and one line per site in fractional coordinates.
func (s *Structure) Summary() string {
	var sb strings.Builder
	abc := s.Lattice.Abc()
	ang := s.Lattice.Angles()

	fmt.Fprintf(&sb, "Full Formula (%s)\n", s.Formula())
	fmt.Fprintf(&sb, "Reduced Formula: %s\n", s.ReducedFormula())
	fmt.Fprintf(&sb, "abc   : %11.6f %11.6f %11.6f\n", abc[0], abc[1], abc[2])
	fmt.Fprintf(&sb, "angles: %11.6f %11.6f %11.6f\n", ang[0], ang[1], ang[2])
	fmt.Fprintf(&sb, "volume: %11.6f\n", s.Lattice.Volume())
	fmt.Fprintf(&sb, "Sites (%d)\n", s.NumSites())
	fmt.Fprintf(&sb, "%4s  %-12s %9s %9s %9s\n", "#", "SP", "a", "b", "c")
	for i, site := range s.Sites {
		fmt.Fprintf(&sb, "%4d  %-12s %9.6f %9.6f %9.6f\n", i, site.SpeciesString(), site.Frac[0], site.Frac[1], site.Frac[2])
	}
	return sb.String()
}
