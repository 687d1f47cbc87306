// Package export writes tree fragments to CSV and YAML files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/maruel/treedb/internal/search"
	"github.com/maruel/treedb/internal/tree"
	"gopkg.in/yaml.v3"
)

// Default file names.
const (
	DefaultCSV  = "export.csv"
	DefaultYAML = "export.yaml"
)

// Rows turns data into records.
//
// A sequence yields one record per element. A map whose values are all maps
// yields one record per value, in key order, like a subcollection. Any other
// map is a single record. Every record must be a map.
func Rows(data any) ([]map[string]any, error) {
	switch t := data.(type) {
	case nil:
		return nil, nil
	case []any:
		rows := make([]map[string]any, 0, len(t))
		for i, v := range t {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is a %s, not a map", tree.ErrInvalidData, i, tree.KindOf(v))
			}
			rows = append(rows, m)
		}
		return rows, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k, v := range t {
			if _, ok := v.(map[string]any); !ok {
				return []map[string]any{t}, nil
			}
			keys = append(keys, k)
		}
		slices.Sort(keys)
		rows := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, t[k].(map[string]any))
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("%w: cannot export a %s", tree.ErrInvalidData, tree.KindOf(data))
	}
}

// CSV writes data as CSV to w. The header is the sorted union of the
// records' keys. Nested values are written as JSON, null as an empty cell.
// Nothing is written when there is no record.
func CSV(w io.Writer, data any) error {
	rows, err := Rows(data)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	var header []string
	seen := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	slices.Sort(header)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for _, r := range rows {
		for i, k := range header {
			if rec[i], err = cell(r[k]); err != nil {
				return err
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) (string, error) {
	switch v.(type) {
	case nil:
		return "", nil
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal cell: %w", err)
		}
		return string(b), nil
	default:
		return search.Text(v), nil
	}
}

// YAML writes data as a YAML document to w.
func YAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlValue(data)); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// yamlValue returns a copy of v where integers too large for uint64, kept as
// json.Number, are plain YAML integers instead of quoted strings.
func yamlValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: string(t)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = yamlValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = yamlValue(e)
		}
		return out
	}
	return v
}

// WriteCSV exports data to dir/filename and returns the file path.
func WriteCSV(dir, filename string, data any) (string, error) {
	if filename == "" {
		filename = DefaultCSV
	}
	return writeFile(filepath.Join(dir, filename), func(w io.Writer) error { return CSV(w, data) })
}

// WriteYAML exports data to dir/filename and returns the file path.
func WriteYAML(dir, filename string, data any) (string, error) {
	if filename == "" {
		filename = DefaultYAML
	}
	return writeFile(filepath.Join(dir, filename), func(w io.Writer) error { return YAML(w, data) })
}

func writeFile(path string, fn func(io.Writer) error) (string, error) {
	f, err := os.Create(path) //nolint:gosec // G304: path is chosen by the caller
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		return "", errors.Join(err, f.Close(), os.Remove(path))
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
