package structure

import (
	"fmt"
	"strings"
)

// elementSymbols is indexed by atomic number; index 0 is unused.
var elementSymbols = [...]string{
	"",
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn", "Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba",
	"La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er", "Tm", "Yb", "Lu",
	"Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg", "Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra",
	"Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es", "Fm", "Md", "No", "Lr",
	"Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds", "Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var atomicNumbers = func() map[string]int {
	m := make(map[string]int, len(elementSymbols))
	for z, sym := range elementSymbols {
		if sym != "" {
			m[sym] = z
		}
	}
	return m
}()

// Element is a chemical element identified by its symbol.
type Element string

// Z returns the atomic number, or 0 for an unknown symbol.
func (e Element) Z() int { return atomicNumbers[string(e)] }

// Valid reports whether e is a known element symbol.
func (e Element) Valid() bool { return e.Z() > 0 }

// ElementByNumber returns the element with atomic number z.
func ElementByNumber(z int) (Element, error) {
	if z <= 0 || z >= len(elementSymbols) {
		return "", fmt.Errorf("no element with atomic number %d", z)
	}
	return Element(elementSymbols[z]), nil
}

// ElementBySymbol returns the element for an exact, case-normalized symbol.
func ElementBySymbol(sym string) (Element, error) {
	sym = normalizeSymbol(sym)
	if _, ok := atomicNumbers[sym]; !ok {
		return "", fmt.Errorf("unknown element %q", sym)
	}
	return Element(sym), nil
}

// ParseElement extracts an element from a species string or site label.
// It accepts oxidation suffixes ("Fe2+", "O2-") and numbered labels ("Fe1",
// "O12a"). Two-letter symbols are preferred over one-letter ones.
func ParseElement(s string) (Element, error) {
	s = strings.TrimSpace(s)
	letters := 0
	for letters < len(s) && isASCIILetter(s[letters]) {
		letters++
	}
	if letters == 0 {
		return "", fmt.Errorf("no element symbol in %q", s)
	}
	prefix := s[:letters]
	if letters >= 2 {
		if e, err := ElementBySymbol(prefix[:2]); err == nil {
			return e, nil
		}
	}
	if e, err := ElementBySymbol(prefix[:1]); err == nil {
		return e, nil
	}
	return "", fmt.Errorf("unknown element in %q", s)
}

func normalizeSymbol(sym string) string {
	sym = strings.TrimSpace(sym)
	if sym == "" {
		return sym
	}
	return strings.ToUpper(sym[:1]) + strings.ToLower(sym[1:])
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
