// Package formats reads and writes crystal structure files.
package formats

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

// Parser decodes a structure from raw file content.
type Parser func(data []byte) (*structure.Structure, error)

// Writer encodes a structure.
type Writer func(s *structure.Structure) ([]byte, error)

type codec struct {
	parse Parser
	write Writer
}

// codecs maps each accepted format tag to its codec. Aliases share entries.
var codecs = map[string]codec{
	"cif":     {parse: parseCIF, write: writeCIF},
	"poscar":  {parse: parsePOSCAR, write: writePOSCAR},
	"vasp":    {parse: parsePOSCAR, write: writePOSCAR},
	"contcar": {parse: parsePOSCAR, write: writePOSCAR},
	"json":    {parse: parseJSON, write: writeJSON},
	"yaml":    {parse: parseYAML, write: writeYAML},
	"yml":     {parse: parseYAML, write: writeYAML},
	"xsf":     {parse: parseXSF, write: writeXSF},
}

// UnsupportedFormatError is returned for a format tag with no codec.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported structure format %q (supported: %s)", e.Format, strings.Join(Supported(), ", "))
}

// Normalize lower-cases and trims a format tag.
func Normalize(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

// Supported lists the accepted format tags in sorted order.
func Supported() []string {
	out := make([]string, 0, len(codecs))
	for name := range codecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsSupported reports whether format names a known codec.
func IsSupported(format string) bool {
	_, ok := codecs[Normalize(format)]
	return ok
}

// Parse decodes data in the given format.
func Parse(format string, data []byte) (*structure.Structure, error) {
	c, ok := codecs[Normalize(format)]
	if !ok {
		return nil, &UnsupportedFormatError{Format: format}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty %s document", Normalize(format))
	}
	// Strip a UTF-8 byte order mark and normalize line endings.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return c.parse(data)
}

// Write encodes s in the given format.
func Write(format string, s *structure.Structure) ([]byte, error) {
	c, ok := codecs[Normalize(format)]
	if !ok {
		return nil, &UnsupportedFormatError{Format: format}
	}
	return c.write(s)
}
