// Package alignment derives the largest vector width (in elements) that every access to an
// operand can use without crossing a contiguity break.
package alignment

import (
	"fmt"

	"github.com/samcharles93/gemmforge/internal/gemm"
)

// MaxAccessBytes is the widest vectorized global memory access (128-bit loads).
const MaxAccessBytes = 16

// Triple is the maximum safe alignment for A, B and the epilogue output.
type Triple struct {
	A        int `json:"a"`
	B        int `json:"b"`
	Epilogue int `json:"epilogue"`
}

func (t Triple) String() string {
	return fmt.Sprintf("%d/%d/%d", t.A, t.B, t.Epilogue)
}

// Array returns the triple as {A, B, Epilogue}.
func (t Triple) Array() [3]int { return [3]int{t.A, t.B, t.Epilogue} }

// Covers reports whether every entry of other is at most the matching entry of t.
func (t Triple) Covers(other Triple) bool {
	return other.A <= t.A && other.B <= t.B && other.Epilogue <= t.Epilogue
}

// Min returns the element-wise minimum.
func (t Triple) Min(other Triple) Triple {
	return Triple{
		A:        min(t.A, other.A),
		B:        min(t.B, other.B),
		Epilogue: min(t.Epilogue, other.Epilogue),
	}
}

// Max is the platform cap for dtype, in elements.
func Max(dtype gemm.DType) int {
	size := dtype.Size()
	if size == 0 {
		return 1
	}
	return max(1, MaxAccessBytes/size)
}

// Candidates lists the supported alignments for dtype, largest first.
func Candidates(dtype gemm.DType) []int {
	var out []int
	for a := Max(dtype); a >= 1; a /= 2 {
		out = append(out, a)
	}
	return out
}

// Resolve returns the alignment of view holding dtype elements. A runtime-determined last
// dimension yields 1. For a strided view the logical last-dim extent is not considered:
// the result is gcd(rowStride, offset, 16/elemsize) taken over the parent buffer's rows.
func Resolve(view gemm.TensorView, dtype gemm.DType) int {
	last, ok := view.Last()
	if !ok || !last.IsStatic() {
		return 1
	}
	extent := last.Value
	if view.Strided != nil {
		extent = gcd(view.Strided.RowStride, view.Strided.Offset)
	}
	a := gcd(extent, int64(Max(dtype)))
	if a < 1 {
		return 1
	}
	return int(a)
}

// ResolveOperator computes the alignment triple of op.
func ResolveOperator(op gemm.Operator) Triple {
	return Triple{
		A:        Resolve(op.A, op.DType),
		B:        Resolve(op.B, op.DType),
		Epilogue: Resolve(op.Output, op.OutDType()),
	}
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
