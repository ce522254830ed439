package structure

import (
	"encoding/json"
	"fmt"
)

// Dict is the serialized form of a Structure, laid out like pymatgen's
// Structure.as_dict() so that existing tooling can consume it.
type Dict struct {
	Module     string         `json:"@module" yaml:"@module"`
	Class      string         `json:"@class" yaml:"@class"`
	Charge     float64        `json:"charge" yaml:"charge"`
	Lattice    LatticeDict    `json:"lattice" yaml:"lattice"`
	Properties map[string]any `json:"properties" yaml:"properties"`
	Sites      []SiteDict     `json:"sites" yaml:"sites"`
}

// LatticeDict is the serialized form of a Lattice.
type LatticeDict struct {
	Matrix [3][3]float64 `json:"matrix" yaml:"matrix"`
	PBC    [3]bool       `json:"pbc" yaml:"pbc"`
	A      float64       `json:"a" yaml:"a"`
	B      float64       `json:"b" yaml:"b"`
	C      float64       `json:"c" yaml:"c"`
	Alpha  float64       `json:"alpha" yaml:"alpha"`
	Beta   float64       `json:"beta" yaml:"beta"`
	Gamma  float64       `json:"gamma" yaml:"gamma"`
	Volume float64       `json:"volume" yaml:"volume"`
}

// SiteDict is the serialized form of a Site.
type SiteDict struct {
	Species    []SpeciesDict  `json:"species" yaml:"species"`
	Abc        *[3]float64    `json:"abc,omitempty" yaml:"abc,omitempty"`
	Xyz        *[3]float64    `json:"xyz,omitempty" yaml:"xyz,omitempty"`
	Label      string         `json:"label" yaml:"label"`
	Properties map[string]any `json:"properties" yaml:"properties"`
}

// SpeciesDict is the serialized form of a Species.
type SpeciesDict struct {
	Element string  `json:"element" yaml:"element"`
	Occu    float64 `json:"occu" yaml:"occu"`
}

// ToDict converts the structure to its serialized form.
func (s *Structure) ToDict() Dict {
	abc, angles := s.Lattice.Abc(), s.Lattice.Angles()
	d := Dict{
		Module:     "pymatgen.core.structure",
		Class:      "Structure",
		Properties: map[string]any{},
		Lattice: LatticeDict{
			PBC:    [3]bool{true, true, true},
			A:      abc[0],
			B:      abc[1],
			C:      abc[2],
			Alpha:  angles[0],
			Beta:   angles[1],
			Gamma:  angles[2],
			Volume: s.Lattice.Volume(),
		},
		Sites: make([]SiteDict, 0, len(s.Sites)),
	}
	for i, row := range s.Lattice.Matrix {
		d.Lattice.Matrix[i] = row
	}

	for i, site := range s.Sites {
		frac := [3]float64(site.Frac)
		cart := [3]float64(s.CartCoords(i))
		sd := SiteDict{
			Abc:        &frac,
			Xyz:        &cart,
			Label:      site.Label,
			Properties: map[string]any{},
			Species:    make([]SpeciesDict, 0, len(site.Species)),
		}
		for _, sp := range site.Species {
			sd.Species = append(sd.Species, SpeciesDict{Element: string(sp.Element), Occu: sp.Occupancy})
		}
		d.Sites = append(d.Sites, sd)
	}
	return d
}

// FromDict rebuilds a structure from its serialized form. Sites may carry
// fractional (abc) or Cartesian (xyz) coordinates; abc wins when both are set.
func FromDict(d Dict) (*Structure, error) {
	var m [3]Vec3
	for i, row := range d.Lattice.Matrix {
		m[i] = row
	}
	lattice, err := NewLattice(m)
	if err != nil {
		return nil, fmt.Errorf("lattice: %w", err)
	}

	sites := make([]Site, 0, len(d.Sites))
	for i, sd := range d.Sites {
		site := Site{Label: sd.Label}
		switch {
		case sd.Abc != nil:
			site.Frac = *sd.Abc
		case sd.Xyz != nil:
			site.Frac = lattice.FracCoords(*sd.Xyz)
		default:
			return nil, fmt.Errorf("site %d has neither abc nor xyz coordinates", i)
		}
		for _, sp := range sd.Species {
			el, err := ParseElement(sp.Element)
			if err != nil {
				return nil, fmt.Errorf("site %d: %w", i, err)
			}
			occu := sp.Occu
			if occu == 0 {
				occu = 1
			}
			site.Species = append(site.Species, Species{Element: el, Occupancy: occu})
		}
		sites = append(sites, site)
	}
	return New(lattice, sites)
}

// MarshalJSON encodes the structure as a pymatgen-style dict.
func (s *Structure) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToDict())
}

// UnmarshalJSON decodes a pymatgen-style dict.
func (s *Structure) UnmarshalJSON(data []byte) error {
	var d Dict
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	parsed, err := FromDict(d)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
