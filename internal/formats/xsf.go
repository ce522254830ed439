package formats

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

// parseXSF reads the PRIMVEC and PRIMCOORD blocks of an XCrySDen structure
// file. Atoms are given by atomic number or symbol with Cartesian
// coordinates in Å.
func parseXSF(data []byte) (*structure.Structure, error) {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	var (
		lattice *structure.Lattice
		sites   []structure.Site
	)
	for i := 0; i < len(lines); i++ {
		switch strings.ToUpper(strings.Fields(lines[i])[0]) {
		case "PRIMVEC":
			if i+3 >= len(lines) {
				return nil, fmt.Errorf("xsf: truncated PRIMVEC block")
			}
			var m [3]structure.Vec3
			for j := 0; j < 3; j++ {
				v, err := parseVec(lines[i+1+j])
				if err != nil {
					return nil, fmt.Errorf("xsf: PRIMVEC row %d: %w", j+1, err)
				}
				m[j] = v
			}
			l, err := structure.NewLattice(m)
			if err != nil {
				return nil, fmt.Errorf("xsf: %w", err)
			}
			lattice = l
			i += 3

		case "PRIMCOORD":
			if lattice == nil {
				return nil, fmt.Errorf("xsf: PRIMCOORD before PRIMVEC")
			}
			if i+1 >= len(lines) {
				return nil, fmt.Errorf("xsf: truncated PRIMCOORD block")
			}
			n, err := strconv.Atoi(strings.Fields(lines[i+1])[0])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("xsf: invalid atom count %q", lines[i+1])
			}
			if n > len(lines)-i-2 {
				return nil, fmt.Errorf("xsf: expected %d atoms, found %d", n, len(lines)-i-2)
			}
			for j := 0; j < n; j++ {
				line := lines[i+2+j]
				fields := strings.Fields(line)
				el, err := xsfElement(fields[0])
				if err != nil {
					return nil, fmt.Errorf("xsf: atom %d: %w", j+1, err)
				}
				v, err := parseVec(strings.Join(fields[1:], " "))
				if err != nil {
					return nil, fmt.Errorf("xsf: atom %d: %w", j+1, err)
				}
				sites = append(sites, structure.Site{
					Species: []structure.Species{{Element: el, Occupancy: 1}},
					Frac:    lattice.FracCoords(v),
				})
			}
			i += 1 + n
		}
	}

	if lattice == nil {
		return nil, fmt.Errorf("xsf: no PRIMVEC block")
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("xsf: no PRIMCOORD block")
	}
	return structure.New(lattice, sites)
}

func xsfElement(token string) (structure.Element, error) {
	if z, err := strconv.Atoi(token); err == nil {
		return structure.ElementByNumber(z)
	}
	return structure.ElementBySymbol(token)
}

func writeXSF(s *structure.Structure) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("CRYSTAL\nPRIMVEC\n")
	for _, v := range s.Lattice.Matrix {
		fmt.Fprintf(&b, " %.14f %.14f %.14f\n", v[0], v[1], v[2])
	}
	fmt.Fprintf(&b, "PRIMCOORD\n%d 1\n", s.NumSites())
	for i, site := range s.Sites {
		if !site.IsOrdered() {
			return nil, fmt.Errorf("xsf cannot represent disordered site %q", site.Label)
		}
		c := s.CartCoords(i)
		fmt.Fprintf(&b, "%s %.14f %.14f %.14f\n", site.Species[0].Element, c[0], c[1], c[2])
	}
	return b.Bytes(), nil
}
