package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a mapping document. Files ending in .json are parsed as JSON,
// everything else as YAML.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}

	m := New()
	if isJSON(path) {
		err = json.Unmarshal(data, m)
	} else {
		err = yaml.Unmarshal(data, m)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", path, err)
	}
	if m.Tables == nil {
		m.Tables = make(map[string]string)
	}
	if m.Columns == nil {
		m.Columns = make(map[string]map[string]string)
	}
	if m.Transformations == nil {
		m.Transformations = make(map[string][]Transformation)
	}
	return m, nil
}

// Save writes the mapping atomically through a temporary file in the same directory.
func (m *Mapping) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(m, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(m)
	}
	if err != nil {
		return fmt.Errorf("encoding mapping: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating mapping directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing mapping file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing mapping file: %w", err)
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
