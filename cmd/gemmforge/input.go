package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/logger"
	"github.com/samcharles93/gemmforge/internal/pipeline"
)

// loadOperator reads an operator descriptor from a .json, .yaml or .yml file, or from
// stdin when path is "-". Unknown fields are rejected in both encodings.
func loadOperator(path string) (gemm.Operator, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return gemm.Operator{}, fmt.Errorf("read operator: %w", err)
	}
	op, err := decodeOperator(data, catalog.FormatFor(path))
	if err != nil {
		return op, fmt.Errorf("operator %s: %w", path, err)
	}
	if err := op.Validate(); err != nil {
		return op, fmt.Errorf("operator %s: %w", path, err)
	}
	return op, nil
}

func decodeOperator(data []byte, format catalog.Format) (gemm.Operator, error) {
	var op gemm.Operator
	if format == catalog.FormatYAML {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&op); err != nil {
			return op, fmt.Errorf("decode yaml: %w", err)
		}
		return op, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&op); err != nil {
		return op, fmt.Errorf("decode json: %w", err)
	}
	return op, nil
}

func loadCatalog() ([]catalog.Kernel, error) {
	if strings.TrimSpace(catalogPath) == "" {
		return catalog.Builtin(), nil
	}
	return catalog.Load(filepath.Clean(catalogPath))
}

// newCompiler builds the pipeline from the global flags.
func newCompiler(ctx context.Context) (*pipeline.Compiler, error) {
	kernels, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	return &pipeline.Compiler{
		Catalog: kernels,
		Target:  currentTarget(),
		Log:     logger.FromContext(ctx),
	}, nil
}

// writeOutput writes content to path, or to stdout when path is empty.
func writeOutput(path string, content []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(content)
		return err
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(path, append(data, '\n'))
}

func newRunID() string {
	return "run_" + uuid.NewString()
}
