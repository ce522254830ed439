// Package structure models periodic crystal structures: a lattice plus the
// atomic sites it contains.
package structure

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Species is one chemical occupant of a site.
type Species struct {
	Element   Element
	Occupancy float64
}

// Site is a position in the cell, possibly with partial occupancy by
// several species.
type Site struct {
	Species []Species
	Frac    Vec3
	Label   string
}

// IsOrdered reports whether the site holds a single fully occupying species.
func (s Site) IsOrdered() bool {
	return len(s.Species) == 1 && math.Abs(s.Species[0].Occupancy-1) < 1e-8
}

// SpeciesString renders the site occupancy, e.g. "Fe" or "Fe:0.5, Co:0.5".
func (s Site) SpeciesString() string {
	if s.IsOrdered() {
		return string(s.Species[0].Element)
	}
	parts := make([]string, 0, len(s.Species))
	for _, sp := range s.Species {
		parts = append(parts, fmt.Sprintf("%s:%s", sp.Element, strconv.FormatFloat(sp.Occupancy, 'g', 4, 64)))
	}
	return strings.Join(parts, ", ")
}

// Structure is a periodic arrangement of sites in a lattice.
type Structure struct {
	Lattice *Lattice
	Sites   []Site
}

// New validates and assembles a structure.
func New(lattice *Lattice, sites []Site) (*Structure, error) {
	if lattice == nil {
		return nil, fmt.Errorf("structure has no lattice")
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("structure has no sites")
	}
	for i, site := range sites {
		if len(site.Species) == 0 {
			return nil, fmt.Errorf("site %d has no species", i)
		}
		if !site.Frac.IsFinite() {
			return nil, fmt.Errorf("site %d: coordinates are not finite: %v", i, site.Frac)
		}
		total := 0.0
		for _, sp := range site.Species {
			if !sp.Element.Valid() {
				return nil, fmt.Errorf("site %d: unknown element %q", i, sp.Element)
			}
			if !(sp.Occupancy > 0) || math.IsInf(sp.Occupancy, 0) {
				return nil, fmt.Errorf("site %d: occupancy of %s must be positive and finite", i, sp.Element)
			}
			total += sp.Occupancy
		}
		if total > 1+1e-4 {
			return nil, fmt.Errorf("site %d: total occupancy %g exceeds 1", i, total)
		}
		if sites[i].Label == "" {
			sites[i].Label = site.SpeciesString()
		}
	}
	return &Structure{Lattice: lattice, Sites: sites}, nil
}

// NumSites returns the number of sites.
func (s *Structure) NumSites() int { return len(s.Sites) }

// CartCoords returns the Cartesian position of site i.
func (s *Structure) CartCoords(i int) Vec3 {
	return s.Lattice.CartCoords(s.Sites[i].Frac)
}

// Composition returns the amount of each element in the cell.
func (s *Structure) Composition() map[Element]float64 {
	comp := make(map[Element]float64)
	for _, site := range s.Sites {
		for _, sp := range site.Species {
			comp[sp.Element] += sp.Occupancy
		}
	}
	return comp
}

// Formula returns the cell formula with elements in alphabetical order,
// e.g. "Cl4 Na4".
func (s *Structure) Formula() string {
	return formatComposition(s.Composition())
}

// ReducedFormula divides the formula by the greatest common divisor of
// integral amounts, e.g. "NaCl". Non-integral compositions are left as is.
func (s *Structure) ReducedFormula() string {
	comp := s.Composition()
	div := 0
	for _, amt := range comp {
		n := math.Round(amt)
		if math.Abs(amt-n) > 1e-6 {
			div = 1
			break
		}
		div = gcd(div, int(n))
	}
	if div == 0 {
		div = 1
	}

	keys := sortedElements(comp)
	var b strings.Builder
	for _, el := range keys {
		b.WriteString(string(el))
		amt := comp[el] / float64(div)
		if math.Abs(amt-1) > 1e-8 {
			b.WriteString(strconv.FormatFloat(amt, 'g', 6, 64))
		}
	}
	return b.String()
}

// SupercellSize returns the number of sites a supercell of a cell with n
// sites would hold. ok is false when a factor is not positive or the count
// overflows int.
func SupercellSize(n int, scale [3]int) (size int, ok bool) {
	if n < 0 {
		return 0, false
	}
	size = n
	for _, f := range scale {
		if f < 1 {
			return 0, false
		}
		if size > math.MaxInt/f {
			return 0, false
		}
		size *= f
	}
	return size, true
}

// MakeSupercell replicates the cell scale[0]×scale[1]×scale[2] times along
// its lattice vectors, in place. Replicated coordinates are not wrapped back
// into [0, 1).
func (s *Structure) MakeSupercell(scale [3]int) error {
	for i, n := range scale {
		if n < 1 {
			return fmt.Errorf("supercell factor %d along axis %d must be positive", n, i)
		}
	}
	size, ok := SupercellSize(len(s.Sites), scale)
	if !ok {
		return fmt.Errorf("supercell %v of %d sites is too large", scale, len(s.Sites))
	}
	f := Vec3{float64(scale[0]), float64(scale[1]), float64(scale[2])}
	lattice, err := s.Lattice.Scaled(f)
	if err != nil {
		return fmt.Errorf("scaling lattice: %w", err)
	}

	sites := make([]Site, 0, size)
	for _, site := range s.Sites {
		for i := 0; i < scale[0]; i++ {
			for j := 0; j < scale[1]; j++ {
				for k := 0; k < scale[2]; k++ {
					ns := site
					ns.Species = append([]Species(nil), site.Species...)
					ns.Frac = Vec3{
						(site.Frac[0] + float64(i)) / f[0],
						(site.Frac[1] + float64(j)) / f[1],
						(site.Frac[2] + float64(k)) / f[2],
					}
					sites = append(sites, ns)
				}
			}
		}
	}

	s.Lattice = lattice
	s.Sites = sites
	return nil
}

func formatComposition(comp map[Element]float64) string {
	keys := sortedElements(comp)
	parts := make([]string, 0, len(keys))
	for _, el := range keys {
		parts = append(parts, string(el)+strconv.FormatFloat(comp[el], 'g', 6, 64))
	}
	return strings.Join(parts, " ")
}

func sortedElements(comp map[Element]float64) []Element {
	keys := make([]Element, 0, len(comp))
	for el := range comp {
		keys = append(keys, el)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
