package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog document.
type File struct {
	Kernels []Kernel `json:"kernels" yaml:"kernels"`
}

// Format names a catalog encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from a file extension. Anything that is not YAML is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and validates a catalog file.
func Load(path string) ([]Kernel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	kernels, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return kernels, nil
}

// Decode parses a catalog document. Kernels keep their document order, which is the order
// the filter preserves.
func Decode(data []byte, format Format) ([]Kernel, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown catalog format %q", format)
	}
	for i, k := range f.Kernels {
		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("kernel %d: %w", i, err)
		}
	}
	return f.Kernels, nil
}

// Encode writes kernels in the given format.
func Encode(kernels []Kernel, format Format) ([]byte, error) {
	f := File{Kernels: kernels}
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON:
		return json.MarshalIndent(f, "", "  ")
	default:
		return nil, fmt.Errorf("catalog: unknown format %q", format)
	}
}
