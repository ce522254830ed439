package resolver

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

// Query parameter names.
const (
	ParamStructureURL    = "structure-url"
	ParamStructureFormat = "structure-format"
	ParamSupercell       = "supercell"
)

// Request is the validated form of a viewer query string.
type Request struct {
	StructureURL string
	Format       string
	// Supercell is nil when no replication was requested.
	Supercell *[3]int
}

// ParseQuery extracts a Request from a raw query string. It returns
// (nil, nil) when structure-url or structure-format is missing: that is the
// idle state, not an error. A leading "?" is ignored. Pairs that fail to
// decode are skipped rather than failing the whole query.
func ParseQuery(raw string) (*Request, error) {
	values, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	return FromValues(values)
}

// FromValues is ParseQuery for already-decoded values.
func FromValues(values url.Values) (*Request, error) {
	structureURL := first(values, ParamStructureURL)
	format := first(values, ParamStructureFormat)
	if structureURL == "" || format == "" {
		return nil, nil
	}

	req := &Request{StructureURL: structureURL, Format: format}
	if sc := first(values, ParamSupercell); sc != "" {
		scale, err := ParseSupercell(sc)
		if err != nil {
			return nil, err
		}
		req.Supercell = &scale
	}
	return req, nil
}

// ParseSupercell parses "x,y,z" into three positive integers.
func ParseSupercell(s string) ([3]int, error) {
	var scale [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return scale, &SupercellArgumentError{Value: s, Reason: fmt.Sprintf("expected 3 comma-separated integers, got %d", len(parts))}
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return scale, &SupercellArgumentError{Value: s, Reason: fmt.Sprintf("%q is not an integer", strings.TrimSpace(p))}
		}
		if n < 1 {
			return scale, &SupercellArgumentError{Value: s, Reason: fmt.Sprintf("factor %d must be at least 1", n)}
		}
		scale[i] = n
	}
	if _, ok := structure.SupercellSize(1, scale); !ok {
		return scale, &SupercellArgumentError{Value: s, Reason: "factors overflow"}
	}
	return scale, nil
}

// first returns the first non-blank value for key.
func first(values url.Values, key string) string {
	for _, v := range values[key] {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
