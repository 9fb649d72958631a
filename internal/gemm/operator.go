package gemm

import (
	"fmt"
	"strconv"
	"strings"
)

// Dim is one logical dimension: either a static extent or a named runtime value.
type Dim struct {
	Name    string `json:"name" yaml:"name"`
	Value   int64  `json:"value,omitempty" yaml:"value,omitempty"`
	Dynamic bool   `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
}

// Static returns a compile-time dimension.
func Static(name string, v int64) Dim { return Dim{Name: name, Value: v} }

// Symbolic returns a dimension only known at run time.
func Symbolic(name string) Dim { return Dim{Name: name, Dynamic: true} }

func (d Dim) IsStatic() bool { return !d.Dynamic }

// Expr is the C++ expression for the dimension value.
func (d Dim) Expr() string {
	if d.IsStatic() {
		return strconv.FormatInt(d.Value, 10)
	}
	return d.Name
}

func (d Dim) String() string {
	if d.IsStatic() {
		return strconv.FormatInt(d.Value, 10)
	}
	return d.Name + "?"
}

// Strided describes a view into a larger buffer. Strides and offset are in elements.
type Strided struct {
	RowStride   int64 `json:"row_stride" yaml:"row_stride"`
	BatchStride int64 `json:"batch_stride,omitempty" yaml:"batch_stride,omitempty"`
	Offset      int64 `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// TensorView is one operand as seen by the kernel.
type TensorView struct {
	Name    string   `json:"name" yaml:"name"`
	Shape   []Dim    `json:"shape" yaml:"shape"`
	Strided *Strided `json:"strided,omitempty" yaml:"strided,omitempty"`
}

func (v TensorView) Rank() int { return len(v.Shape) }

// Last returns the innermost logical dimension.
func (v TensorView) Last() (Dim, bool) {
	if len(v.Shape) == 0 {
		return Dim{}, false
	}
	return v.Shape[len(v.Shape)-1], true
}

// StaticElements returns the element count when every dimension is static.
func (v TensorView) StaticElements() (int64, bool) {
	n := int64(1)
	for _, d := range v.Shape {
		if !d.IsStatic() {
			return 0, false
		}
		n *= d.Value
	}
	return n, true
}

func (v TensorView) String() string {
	parts := make([]string, len(v.Shape))
	for i, d := range v.Shape {
		parts[i] = d.String()
	}
	return v.Name + "[" + strings.Join(parts, ",") + "]"
}

// Layouts holds the storage order of A, B and the output.
type Layouts struct {
	A Layout `json:"a" yaml:"a"`
	B Layout `json:"b" yaml:"b"`
	C Layout `json:"c" yaml:"c"`
}

func (l Layouts) String() string {
	return l.A.String()[:1] + l.B.String()[:1] + l.C.String()[:1]
}

// Operator is the contraction being compiled. It is produced upstream and never mutated here.
type Operator struct {
	Name        string      `json:"name" yaml:"name"`
	DType       DType       `json:"dtype" yaml:"dtype"`
	OutputDType DType       `json:"output_dtype,omitempty" yaml:"output_dtype,omitempty"`
	Accumulator DType       `json:"accumulator,omitempty" yaml:"accumulator,omitempty"`
	Layout      Layouts     `json:"layout" yaml:"layout"`
	Epilogue    Epilogue    `json:"epilogue" yaml:"epilogue"`
	A           TensorView  `json:"a" yaml:"a"`
	B           TensorView  `json:"b" yaml:"b"`
	Metadata    *TensorView `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Bias        *TensorView `json:"bias,omitempty" yaml:"bias,omitempty"`
	Output      TensorView  `json:"output" yaml:"output"`
	SplitK      int         `json:"split_k,omitempty" yaml:"split_k,omitempty"`
}

// OutDType is the output element type, defaulting to the operand type.
func (op Operator) OutDType() DType {
	if op.OutputDType == DTypeInvalid {
		return op.DType
	}
	return op.OutputDType
}

// Sparse reports whether A is 2:4 structured-sparse (a metadata tensor is attached).
func (op Operator) Sparse() bool { return op.Metadata != nil }

// SplitKFactor returns the requested split-K factor, at least 1.
func (op Operator) SplitKFactor() int {
	if op.SplitK < 1 {
		return 1
	}
	return op.SplitK
}

// Inputs returns the input views in the positional order used by generated code.
func (op Operator) Inputs() []TensorView {
	in := []TensorView{op.A, op.B}
	if op.Metadata != nil {
		in = append(in, *op.Metadata)
	}
	if op.Bias != nil {
		in = append(in, *op.Bias)
	}
	return in
}

// Validate checks the structural requirements the pipeline relies on.
func (op Operator) Validate() error {
	if op.Name == "" {
		return fmt.Errorf("gemm: operator name is required")
	}
	if op.DType.Size() == 0 || op.DType == TF32 {
		return fmt.Errorf("gemm: operator %s: unsupported dtype %s", op.Name, op.DType)
	}
	if op.A.Rank() < 2 || op.B.Rank() != 2 || op.Output.Rank() < 2 {
		return fmt.Errorf("gemm: operator %s: expected rank>=2 A, rank-2 B and rank>=2 output, got %s %s %s",
			op.Name, op.A, op.B, op.Output)
	}
	if op.Layout.A == ColumnMajor && op.A.Rank() != 2 {
		return fmt.Errorf("gemm: operator %s: column-major A must be rank 2", op.Name)
	}
	if op.Layout.C == ColumnMajor && op.Output.Rank() != 2 {
		return fmt.Errorf("gemm: operator %s: column-major output must be rank 2", op.Name)
	}
	if op.Epilogue.HasBias() && op.Bias == nil {
		return fmt.Errorf("gemm: operator %s: epilogue %s requires a bias tensor", op.Name, op.Epilogue)
	}
	if op.Metadata != nil && op.Metadata.Rank() != 2 {
		return fmt.Errorf("gemm: operator %s: metadata must be rank 2", op.Name)
	}
	if op.SplitK < 0 {
		return fmt.Errorf("gemm: operator %s: negative split_k", op.Name)
	}
	return nil
}

// Problem names the M, N and K extents of the contraction.
type Problem struct {
	M []Dim // folded leading dimensions of A (row-major) or its second dim (column-major)
	N Dim
	K Dim
}

func (p Problem) String() string {
	ms := make([]string, len(p.M))
	for i, d := range p.M {
		ms[i] = d.String()
	}
	return fmt.Sprintf("M=%s N=%s K=%s", strings.Join(ms, "*"), p.N, p.K)
}

// Problem derives M, N and K from the operand views. K is read from B because A may be
// compressed along K.
func (op Operator) Problem() Problem {
	var p Problem
	a := op.A.Shape
	switch op.Layout.A {
	case ColumnMajor:
		p.M = []Dim{a[1]}
	default:
		p.M = append([]Dim(nil), a[:len(a)-1]...)
	}
	b := op.B.Shape
	switch op.Layout.B {
	case ColumnMajor:
		p.N, p.K = b[0], b[1]
	default:
		p.K, p.N = b[0], b[1]
	}
	return p
}
