package formats

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ziadkadry99/crystal-viewer/internal/structure"
)

func parseJSON(data []byte) (*structure.Structure, error) {
	var d structure.Dict
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	return structure.FromDict(d)
}

func writeJSON(s *structure.Structure) ([]byte, error) {
	return json.MarshalIndent(s.ToDict(), "", "  ")
}

func parseYAML(data []byte) (*structure.Structure, error) {
	var d structure.Dict
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	return structure.FromDict(d)
}

func writeYAML(s *structure.Structure) ([]byte, error) {
	return yaml.Marshal(s.ToDict())
}
