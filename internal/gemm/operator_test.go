package gemm

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func rcrOperator() Operator {
	return Operator{
		Name:   "gemm_rcr_0",
		DType:  F16,
		Layout: Layouts{A: RowMajor, B: ColumnMajor, C: RowMajor},
		A:      TensorView{Name: "x", Shape: []Dim{Symbolic("batch"), Static("seq", 64), Static("k", 256)}},
		B:      TensorView{Name: "w", Shape: []Dim{Static("n", 128), Static("k", 256)}},
		Output: TensorView{Name: "y", Shape: []Dim{Symbolic("batch"), Static("seq", 64), Static("n", 128)}},
	}
}

func TestProblemFoldsLeadingDims(t *testing.T) {
	t.Parallel()
	p := rcrOperator().Problem()
	if len(p.M) != 2 || p.M[0].Name != "batch" || p.M[1].Value != 64 {
		t.Fatalf("unexpected M: %+v", p.M)
	}
	if p.N.Value != 128 || p.K.Value != 256 {
		t.Fatalf("unexpected N/K: %s", p)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Operator)
		wantErr string
	}{
		{"ok", func(*Operator) {}, ""},
		{"no name", func(op *Operator) { op.Name = "" }, "name is required"},
		{"bias missing", func(op *Operator) { op.Epilogue = EpilogueBiasRelu }, "requires a bias"},
		{"tf32 operands", func(op *Operator) { op.DType = TF32 }, "unsupported dtype"},
		{"rank-1 B", func(op *Operator) { op.B.Shape = op.B.Shape[:1] }, "rank"},
		{"column-major rank-3 A", func(op *Operator) { op.Layout.A = ColumnMajor }, "column-major A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := rcrOperator()
			tt.mutate(&op)
			err := op.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestOperatorYAML(t *testing.T) {
	t.Parallel()
	src := `
name: gemm_sparse
dtype: f16
layout: {a: row, b: column, c: row}
epilogue: bias_relu
a: {name: a, shape: [{name: M, dynamic: true}, {name: K2, value: 128}]}
b: {name: b, shape: [{name: N, value: 64}, {name: K, value: 256}]}
metadata: {name: e, shape: [{name: M, dynamic: true}, {name: KE, value: 16}]}
bias: {name: bias, shape: [{name: N, value: 64}]}
output: {name: c, shape: [{name: M, dynamic: true}, {name: N, value: 64}]}
`
	var op Operator
	if err := yaml.Unmarshal([]byte(src), &op); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := op.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if op.DType != F16 || op.Layout.B != ColumnMajor || op.Epilogue != EpilogueBiasRelu || !op.Sparse() {
		t.Fatalf("unexpected operator: %+v", op)
	}
	if d, _ := op.Output.Last(); !d.IsStatic() || d.Value != 64 {
		t.Fatalf("unexpected output last dim: %+v", d)
	}
}

func TestTargetAccumulator(t *testing.T) {
	t.Parallel()
	op := rcrOperator()
	if got := DefaultTarget().Accumulator(op); got != F32 {
		t.Fatalf("default accumulator = %s, want float32", got)
	}
	if got := (Target{Arch: 80, UseFP16Acc: true}).Accumulator(op); got != F16 {
		t.Fatalf("fp16 acc override = %s, want float16", got)
	}
	op.DType = BF16
	if got := (Target{Arch: 80, UseFP16Acc: true}).Accumulator(op); got != F32 {
		t.Fatalf("bf16 must not be overridden, got %s", got)
	}
}

func TestNoKernelErrorUnwraps(t *testing.T) {
	t.Parallel()
	err := error(&NoKernelError{Operator: "op", DType: F16, Alignments: [3]int{8, 8, 1}, Arch: 80})
	if !errors.Is(err, ErrNoFeasibleKernel) {
		t.Fatalf("expected errors.Is ErrNoFeasibleKernel")
	}
	if !strings.Contains(err.Error(), "align=8/8/1") {
		t.Fatalf("missing alignment context: %v", err)
	}
}
