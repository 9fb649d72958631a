package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/gemmforge/internal/gemm"
)

const operatorYAML = `name: gemm_rcr_bias
dtype: float16
layout: {a: row, b: column, c: row}
epilogue: bias
a: {name: x, shape: [{name: m, dynamic: true}, {name: k, value: 256}]}
b: {name: w, shape: [{name: n, value: 128}, {name: k, value: 256}]}
bias: {name: b, shape: [{name: n, value: 128}]}
output: {name: y, shape: [{name: m, dynamic: true}, {name: n, value: 128}]}
`

const operatorJSON = `{
	"name": "gemm_rcr_bias",
	"dtype": "float16",
	"layout": {"a": "row", "b": "column", "c": "row"},
	"epilogue": "bias",
	"a": {"name": "x", "shape": [{"name": "m", "dynamic": true}, {"name": "k", "value": 256}]},
	"b": {"name": "w", "shape": [{"name": "n", "value": 128}, {"name": "k", "value": 256}]},
	"bias": {"name": "b", "shape": [{"name": "n", "value": 128}]},
	"output": {"name": "y", "shape": [{"name": "m", "dynamic": true}, {"name": "n", "value": 128}]}
}`

func TestLoadOperator(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		file    string
		content string
	}{
		{"op.yaml", operatorYAML},
		{"op.yml", operatorYAML},
		{"op.json", operatorJSON},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			op, err := loadOperator(path)
			if err != nil {
				t.Fatalf("loadOperator returned error: %v", err)
			}
			if op.Name != "gemm_rcr_bias" || op.DType != gemm.F16 || op.Epilogue != gemm.EpilogueBias {
				t.Fatalf("unexpected operator: %+v", op)
			}
			if op.Layout.B != gemm.ColumnMajor || op.Bias == nil || op.A.Shape[0].IsStatic() {
				t.Fatalf("unexpected layout or views: %+v", op)
			}
		})
	}
}

func TestLoadOperatorErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown json field", "op.json", `{"name":"x","bogus":1}`, "decode json"},
		{"unknown yaml field", "op.yaml", "name: x\nbogus: 1\n", "decode yaml"},
		{"invalid operator", "empty.json", `{"dtype":"float16"}`, "operator name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := loadOperator(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if _, err := loadOperator(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadCatalogDefaultsToBuiltin(t *testing.T) {
	old := catalogPath
	t.Cleanup(func() { catalogPath = old })

	catalogPath = ""
	kernels, err := loadCatalog()
	if err != nil || len(kernels) == 0 {
		t.Fatalf("loadCatalog() = %d kernels, %v", len(kernels), err)
	}

	catalogPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := loadCatalog(); err == nil {
		t.Fatal("expected error for missing catalog file")
	}
}

func TestWriteOutputCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "gemm.cu")
	if err := writeOutput(path, []byte("// source\n")); err != nil {
		t.Fatalf("writeOutput returned error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "// source\n" {
		t.Fatalf("unexpected content %q", got)
	}
}
