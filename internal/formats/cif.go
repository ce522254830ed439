package formats

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

// siteTolerance is the fractional distance under which two symmetry images
// are treated as the same position.
const siteTolerance = 1e-3

type cifLoop struct {
	tags []string
	rows [][]string
}

// column returns the index of the first of names present in the loop.
func (l *cifLoop) column(names ...string) int {
	for _, name := range names {
		for i, tag := range l.tags {
			if tag == name {
				return i
			}
		}
	}
	return -1
}

type cifBlock struct {
	name  string
	items map[string]string
	loops []*cifLoop
}

func (b *cifBlock) loopWith(tag string) *cifLoop {
	for _, l := range b.loops {
		if l.column(tag) >= 0 {
			return l
		}
	}
	return nil
}

type cifTokenKind int

const (
	cifValue cifTokenKind = iota
	cifTag
	cifLoopStart
	cifData
)

type cifToken struct {
	kind cifTokenKind
	text string
	line int
}

// tokenizeCIF splits CIF 1.1 text into tokens. Quoted strings end at a
// matching quote followed by whitespace; text fields are delimited by lines
// beginning with a semicolon.
func tokenizeCIF(src string) ([]cifToken, error) {
	lines := strings.Split(src, "\n")
	var toks []cifToken
	for ln := 0; ln < len(lines); ln++ {
		line := lines[ln]
		if strings.HasPrefix(line, ";") {
			start := ln + 1
			text := []string{strings.TrimPrefix(line, ";")}
			ln++
			for ln < len(lines) && !strings.HasPrefix(lines[ln], ";") {
				text = append(text, lines[ln])
				ln++
			}
			if ln >= len(lines) {
				return nil, fmt.Errorf("cif: unterminated text field starting on line %d", start)
			}
			toks = append(toks, cifToken{kind: cifValue, text: strings.TrimSpace(strings.Join(text, "\n")), line: start})
			continue
		}

		i := 0
		for i < len(line) {
			c := line[i]
			switch {
			case c == ' ' || c == '\t':
				i++
				continue
			case c == '#':
				i = len(line)
				continue
			case c == '\'' || c == '"':
				end := -1
				for j := i + 1; j < len(line); j++ {
					if line[j] == c && (j+1 == len(line) || line[j+1] == ' ' || line[j+1] == '\t') {
						end = j
						break
					}
				}
				if end < 0 {
					return nil, fmt.Errorf("cif: unterminated quoted string on line %d", ln+1)
				}
				toks = append(toks, cifToken{kind: cifValue, text: line[i+1 : end], line: ln + 1})
				i = end + 1
				continue
			}

			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' {
				j++
			}
			word := line[i:j]
			i = j

			lower := strings.ToLower(word)
			switch {
			case strings.HasPrefix(word, "_"):
				toks = append(toks, cifToken{kind: cifTag, text: normalizeTag(word), line: ln + 1})
			case lower == "loop_":
				toks = append(toks, cifToken{kind: cifLoopStart, line: ln + 1})
			case strings.HasPrefix(lower, "data_"):
				toks = append(toks, cifToken{kind: cifData, text: word[5:], line: ln + 1})
			case strings.HasPrefix(lower, "save_"), lower == "global_", lower == "stop_":
			default:
				toks = append(toks, cifToken{kind: cifValue, text: word, line: ln + 1})
			}
		}
	}
	return toks, nil
}

// normalizeTag folds case and maps DDLm dotted names onto the flat form.
func normalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(tag), ".", "_")
}

func parseCIFBlocks(src string) ([]*cifBlock, error) {
	toks, err := tokenizeCIF(src)
	if err != nil {
		return nil, err
	}

	var (
		blocks []*cifBlock
		cur    *cifBlock
	)
	ensure := func() *cifBlock {
		if cur == nil {
			cur = &cifBlock{items: map[string]string{}}
			blocks = append(blocks, cur)
		}
		return cur
	}

	for i := 0; i < len(toks); {
		t := toks[i]
		switch t.kind {
		case cifData:
			cur = &cifBlock{name: t.text, items: map[string]string{}}
			blocks = append(blocks, cur)
			i++

		case cifTag:
			if i+1 >= len(toks) || toks[i+1].kind != cifValue {
				return nil, fmt.Errorf("cif: tag %s on line %d has no value", t.text, t.line)
			}
			ensure().items[t.text] = toks[i+1].text
			i += 2

		case cifLoopStart:
			loop := &cifLoop{}
			i++
			for i < len(toks) && toks[i].kind == cifTag {
				loop.tags = append(loop.tags, toks[i].text)
				i++
			}
			if len(loop.tags) == 0 {
				return nil, fmt.Errorf("cif: loop_ on line %d has no tags", t.line)
			}
			var values []string
			for i < len(toks) && toks[i].kind == cifValue {
				values = append(values, toks[i].text)
				i++
			}
			if len(values)%len(loop.tags) != 0 {
				return nil, fmt.Errorf("cif: loop on line %d has %d values for %d tags", t.line, len(values), len(loop.tags))
			}
			for r := 0; r < len(values); r += len(loop.tags) {
				loop.rows = append(loop.rows, values[r:r+len(loop.tags)])
			}
			blk := ensure()
			blk.loops = append(blk.loops, loop)

		default:
			return nil, fmt.Errorf("cif: unexpected value %q on line %d", t.text, t.line)
		}
	}
	return blocks, nil
}

// cifNumber parses a CIF numeric value, dropping a standard uncertainty
// suffix such as "5.431(2)". Unknown ("?") and inapplicable (".") values
// report ok=false.
func cifNumber(s string) (v float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "?" || s == "." || s == "" {
		return 0, false, nil
	}
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid number %q", s)
	}
	return v, true, nil
}

func parseCIF(data []byte) (*structure.Structure, error) {
	blocks, err := parseCIFBlocks(string(data))
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, b := range blocks {
		if _, ok := b.items["_cell_length_a"]; !ok {
			continue
		}
		s, err := structureFromBlock(b)
		if err == nil {
			return s, nil
		}
		lastErr = fmt.Errorf("cif: block %q: %w", b.name, err)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("cif: no data block with cell parameters")
}

func structureFromBlock(b *cifBlock) (*structure.Structure, error) {
	var params [6]float64
	for i, tag := range []string{
		"_cell_length_a", "_cell_length_b", "_cell_length_c",
		"_cell_angle_alpha", "_cell_angle_beta", "_cell_angle_gamma",
	} {
		v, ok, err := cifNumber(b.items[tag])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		if !ok {
			if i >= 3 {
				v = 90
			} else {
				return nil, fmt.Errorf("missing %s", tag)
			}
		}
		params[i] = v
	}
	lattice, err := structure.LatticeFromParameters(params[0], params[1], params[2], params[3], params[4], params[5])
	if err != nil {
		return nil, err
	}

	ops, err := cifSymOps(b)
	if err != nil {
		return nil, err
	}

	atoms := b.loopWith("_atom_site_fract_x")
	cartesian := false
	if atoms == nil {
		atoms = b.loopWith("_atom_site_cartn_x")
		cartesian = true
	}
	if atoms == nil {
		return nil, fmt.Errorf("no _atom_site loop")
	}

	var cols [3]int
	prefix := "_atom_site_fract_"
	if cartesian {
		prefix = "_atom_site_cartn_"
	}
	for i, axis := range []string{"x", "y", "z"} {
		cols[i] = atoms.column(prefix + axis)
		if cols[i] < 0 {
			return nil, fmt.Errorf("missing %s%s", prefix, axis)
		}
	}
	symCol := atoms.column("_atom_site_type_symbol")
	labelCol := atoms.column("_atom_site_label")
	occCol := atoms.column("_atom_site_occupancy")
	if symCol < 0 && labelCol < 0 {
		return nil, fmt.Errorf("atom sites have neither type symbols nor labels")
	}

	var sites []structure.Site
	for r, row := range atoms.rows {
		var pos structure.Vec3
		for i, c := range cols {
			v, ok, err := cifNumber(row[c])
			if err != nil {
				return nil, fmt.Errorf("atom site %d: %w", r+1, err)
			}
			if !ok {
				return nil, fmt.Errorf("atom site %d: coordinate %d is unknown", r+1, i+1)
			}
			pos[i] = v
		}
		if cartesian {
			pos = lattice.FracCoords(pos)
		}

		label := ""
		if labelCol >= 0 {
			label = row[labelCol]
		}
		symSrc := label
		if symCol >= 0 {
			symSrc = row[symCol]
		}
		el, err := structure.ParseElement(symSrc)
		if err != nil {
			return nil, fmt.Errorf("atom site %d: %w", r+1, err)
		}

		occ := 1.0
		if occCol >= 0 {
			v, ok, err := cifNumber(row[occCol])
			if err != nil {
				return nil, fmt.Errorf("atom site %d occupancy: %w", r+1, err)
			}
			if ok {
				occ = v
			}
		}
		if occ <= 0 {
			continue
		}
		if occ > 1 {
			occ = 1
		}

		sp := structure.Species{Element: el, Occupancy: occ}
		for _, op := range ops {
			sites = addSymmetryImage(sites, wrapFrac(op.apply(pos)), sp, label)
		}
	}
	return structure.New(lattice, sites)
}

// addSymmetryImage appends a site at pos unless one already sits there. A
// coincident site with other species absorbs sp as a disordered occupant
// when the combined occupancy stays within 1.
func addSymmetryImage(sites []structure.Site, pos structure.Vec3, sp structure.Species, label string) []structure.Site {
	for i := range sites {
		if periodicDistance(sites[i].Frac, pos) > siteTolerance {
			continue
		}
		total := 0.0
		for _, existing := range sites[i].Species {
			if existing.Element == sp.Element {
				return sites
			}
			total += existing.Occupancy
		}
		if total+sp.Occupancy <= 1+1e-4 {
			sites[i].Species = append(sites[i].Species, sp)
			sites[i].Label = ""
		}
		return sites
	}
	return append(sites, structure.Site{
		Species: []structure.Species{sp},
		Frac:    pos,
		Label:   label,
	})
}

var symOpTags = []string{
	"_symmetry_equiv_pos_as_xyz",
	"_space_group_symop_operation_xyz",
}

func cifSymOps(b *cifBlock) ([]symOp, error) {
	var raw []string
	for _, tag := range symOpTags {
		if l := b.loopWith(tag); l != nil {
			c := l.column(tag)
			for _, row := range l.rows {
				raw = append(raw, row[c])
			}
			break
		}
		if v, ok := b.items[tag]; ok {
			raw = append(raw, v)
			break
		}
	}
	if len(raw) == 0 {
		return []symOp{identityOp}, nil
	}

	ops := make([]symOp, 0, len(raw))
	for _, s := range raw {
		op, err := parseSymOp(s)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func writeCIF(s *structure.Structure) ([]byte, error) {
	abc, angles := s.Lattice.Abc(), s.Lattice.Angles()
	var b bytes.Buffer
	fmt.Fprintf(&b, "# generated by crystalviewer\ndata_%s\n", s.ReducedFormula())
	b.WriteString("_symmetry_space_group_name_H-M   'P 1'\n")
	fmt.Fprintf(&b, "_cell_length_a   %.8f\n_cell_length_b   %.8f\n_cell_length_c   %.8f\n", abc[0], abc[1], abc[2])
	fmt.Fprintf(&b, "_cell_angle_alpha   %.8f\n_cell_angle_beta   %.8f\n_cell_angle_gamma   %.8f\n", angles[0], angles[1], angles[2])
	fmt.Fprintf(&b, "_symmetry_Int_Tables_number   1\n_chemical_formula_structural   %s\n", s.ReducedFormula())
	fmt.Fprintf(&b, "_chemical_formula_sum   '%s'\n", s.Formula())
	fmt.Fprintf(&b, "_cell_volume   %.8f\n", s.Lattice.Volume())
	b.WriteString("loop_\n _symmetry_equiv_pos_site_id\n _symmetry_equiv_pos_as_xyz\n  1  'x, y, z'\n")
	b.WriteString("loop_\n _atom_site_type_symbol\n _atom_site_label\n _atom_site_symmetry_multiplicity\n")
	b.WriteString(" _atom_site_fract_x\n _atom_site_fract_y\n _atom_site_fract_z\n _atom_site_occupancy\n")

	counts := map[structure.Element]int{}
	for _, site := range s.Sites {
		for _, sp := range site.Species {
			label := fmt.Sprintf("%s%d", sp.Element, counts[sp.Element])
			counts[sp.Element]++
			fmt.Fprintf(&b, "  %s  %s  1  %.8f  %.8f  %.8f  %s\n",
				sp.Element, label, site.Frac[0], site.Frac[1], site.Frac[2],
				strconv.FormatFloat(math.Round(sp.Occupancy*1e6)/1e6, 'f', -1, 64))
		}
	}
	return b.Bytes(), nil
}
