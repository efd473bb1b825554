package remote

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
)

// LoadSeed reads a YAML file of the form `table: [ {column: value}, ... ]`
// and seeds every table into m.
func LoadSeed(m *Memory, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}

	var tables map[string][]map[string]interface{}
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rows := make([]map[string]any, 0, len(tables[name]))
		for _, r := range tables[name] {
			rows = append(rows, normalizeYAML(r).(map[string]any))
		}
		if err := m.Seed(name, rows...); err != nil {
			return err
		}
	}
	return nil
}

// yaml.v2 decodes nested mappings as map[interface{}]interface{}, which JSON cannot encode.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
