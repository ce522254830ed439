package formats

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

// parsePOSCAR reads VASP 4 and VASP 5 POSCAR/CONTCAR files. VASP 4 files
// carry no species line, so element symbols are taken from the comment line.
func parsePOSCAR(data []byte) (*structure.Structure, error) {
	comment, rest, _ := strings.Cut(string(data), "\n")
	// The comment may be blank; every other line is positional after
	// blank lines are dropped.
	lines := append([]string{comment}, nonEmptyLines(rest)...)
	if len(lines) < 7 {
		return nil, fmt.Errorf("poscar: truncated header (%d lines)", len(lines))
	}

	scale, err := strconv.ParseFloat(strings.Fields(lines[1])[0], 64)
	if err != nil {
		return nil, fmt.Errorf("poscar: scale factor: %w", err)
	}
	if scale == 0 {
		return nil, fmt.Errorf("poscar: scale factor is zero")
	}

	var m [3]structure.Vec3
	for i := 0; i < 3; i++ {
		v, err := parseVec(lines[2+i])
		if err != nil {
			return nil, fmt.Errorf("poscar: lattice vector %d: %w", i+1, err)
		}
		m[i] = v
	}

	pos := 5
	var symbols []string
	if !isIntegerLine(lines[pos]) {
		symbols = strings.Fields(lines[pos])
		pos++
		if pos >= len(lines) {
			return nil, fmt.Errorf("poscar: missing species counts")
		}
	}
	if !isIntegerLine(lines[pos]) {
		return nil, fmt.Errorf("poscar: invalid species counts %q", lines[pos])
	}
	var counts []int
	total := 0
	// Every site needs its own line after the counts, so the total is
	// bounded by what is left of the file.
	remaining := len(lines) - pos - 1
	for _, f := range strings.Fields(lines[pos]) {
		n, _ := strconv.Atoi(f)
		if n < 0 {
			return nil, fmt.Errorf("poscar: negative species count %d", n)
		}
		if n > remaining-total {
			return nil, fmt.Errorf("poscar: species counts exceed the %d remaining lines", remaining)
		}
		counts = append(counts, n)
		total += n
	}
	pos++

	if symbols == nil {
		symbols = strings.Fields(comment)
	}
	if len(symbols) < len(counts) {
		return nil, fmt.Errorf("poscar: %d species counts but %d element symbols", len(counts), len(symbols))
	}
	elements := make([]structure.Element, len(counts))
	for i := range counts {
		// VASP 5.4 may write symbols like "Fe_pv" or "Fe/abc123".
		sym := strings.FieldsFunc(symbols[i], func(r rune) bool { return r == '_' || r == '/' })
		if len(sym) == 0 {
			return nil, fmt.Errorf("poscar: empty element symbol")
		}
		el, err := structure.ElementBySymbol(sym[0])
		if err != nil {
			return nil, fmt.Errorf("poscar: %w", err)
		}
		elements[i] = el
	}

	if pos < len(lines) && strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[pos])), "s") {
		pos++ // Selective dynamics
	}
	if pos >= len(lines) {
		return nil, fmt.Errorf("poscar: missing coordinate mode")
	}
	mode := strings.ToLower(strings.TrimSpace(lines[pos]))
	cartesian := strings.HasPrefix(mode, "c") || strings.HasPrefix(mode, "k")
	pos++

	if len(lines)-pos < total {
		return nil, fmt.Errorf("poscar: expected %d coordinates, found %d", total, len(lines)-pos)
	}

	// A negative scale is the target cell volume.
	factor := scale
	if scale < 0 {
		vol := math.Abs(m[0].Dot(m[1].Cross(m[2])))
		factor = math.Cbrt(-scale / vol)
	}
	for i := range m {
		m[i] = m[i].Scale(factor)
	}
	lattice, err := structure.NewLattice(m)
	if err != nil {
		return nil, fmt.Errorf("poscar: %w", err)
	}

	sites := make([]structure.Site, 0, total)
	for i, n := range counts {
		for j := 0; j < n; j++ {
			v, err := parseVec(lines[pos])
			if err != nil {
				return nil, fmt.Errorf("poscar: coordinate line %d: %w", pos+1, err)
			}
			pos++
			if cartesian {
				v = lattice.FracCoords(v.Scale(factor))
			}
			sites = append(sites, structure.Site{
				Species: []structure.Species{{Element: elements[i], Occupancy: 1}},
				Frac:    v,
			})
		}
	}
	return structure.New(lattice, sites)
}

func writePOSCAR(s *structure.Structure) ([]byte, error) {
	// Group consecutive sites of the same element.
	var (
		symbols []string
		counts  []int
	)
	for _, site := range s.Sites {
		if !site.IsOrdered() {
			return nil, fmt.Errorf("poscar cannot represent disordered site %q", site.Label)
		}
		sym := string(site.Species[0].Element)
		if n := len(symbols); n > 0 && symbols[n-1] == sym {
			counts[n-1]++
			continue
		}
		symbols = append(symbols, sym)
		counts = append(counts, 1)
	}

	var b bytes.Buffer
	b.WriteString(s.ReducedFormula() + "\n")
	b.WriteString("1.0\n")
	for _, v := range s.Lattice.Matrix {
		fmt.Fprintf(&b, "  %.10f %.10f %.10f\n", v[0], v[1], v[2])
	}
	b.WriteString(strings.Join(symbols, " ") + "\n")
	for i, n := range counts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(n))
	}
	b.WriteString("\ndirect\n")
	for _, site := range s.Sites {
		fmt.Fprintf(&b, "%.10f %.10f %.10f %s\n", site.Frac[0], site.Frac[1], site.Frac[2], site.Species[0].Element)
	}
	return b.Bytes(), nil
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func isIntegerLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if _, err := strconv.Atoi(f); err != nil {
			return false
		}
	}
	return true
}

// parseVec reads the first three floats of a line.
func parseVec(line string) (structure.Vec3, error) {
	var v structure.Vec3
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return v, fmt.Errorf("expected 3 numbers, got %q", strings.TrimSpace(line))
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return v, fmt.Errorf("parsing %q: %w", fields[i], err)
		}
		v[i] = f
	}
	return v, nil
}
