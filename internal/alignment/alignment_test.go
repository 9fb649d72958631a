package alignment

import (
	"testing"

	"github.com/samcharles93/gemmforge/internal/gemm"
)

func view(last gemm.Dim, strided *gemm.Strided) gemm.TensorView {
	return gemm.TensorView{Name: "t", Shape: []gemm.Dim{gemm.Static("m", 32), last}, Strided: strided}
}

func TestResolveContiguous(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		last  int64
		dtype gemm.DType
		want  int
	}{
		{"f16 multiple of 8", 256, gemm.F16, 8},
		{"f16 odd", 255, gemm.F16, 1},
		{"f16 multiple of 4", 12, gemm.F16, 4},
		{"f16 multiple of 2", 6, gemm.F16, 2},
		{"f32 capped at 4", 64, gemm.F32, 4},
		{"f64 capped at 2", 64, gemm.F64, 2},
		{"int8 capped at 16", 48, gemm.I8, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(view(gemm.Static("k", tt.last), nil), tt.dtype)
			if got != tt.want {
				t.Errorf("Resolve(last=%d, %s) = %d, want %d", tt.last, tt.dtype, got, tt.want)
			}
		})
	}
}

func TestResolveStridedIsGCDOfStride(t *testing.T) {
	t.Parallel()
	for _, dtype := range []gemm.DType{gemm.F16, gemm.BF16, gemm.F32, gemm.I8} {
		m := int64(Max(dtype))
		for s := int64(1); s <= 96; s++ {
			// The logical extent is deliberately well aligned; only the stride matters.
			v := view(gemm.Static("k", 64), &gemm.Strided{RowStride: s})
			if got, want := Resolve(v, dtype), int(gcd(s, m)); got != want {
				t.Fatalf("%s stride %d: got %d, want %d", dtype, s, got, want)
			}
		}
	}
}

func TestResolveStridedOffsetBreaksAlignment(t *testing.T) {
	t.Parallel()
	v := view(gemm.Static("k", 64), &gemm.Strided{RowStride: 128, Offset: 2})
	if got := Resolve(v, gemm.F16); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestResolveStridedIgnoresExtent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		extent, stride int64
		want           int
	}{
		{2, 64, 8},
		{3, 64, 8},
		{64, 6, 2},
	}
	for _, tt := range tests {
		v := view(gemm.Static("k", tt.extent), &gemm.Strided{RowStride: tt.stride})
		if got := Resolve(v, gemm.F16); got != tt.want {
			t.Errorf("extent %d stride %d: got %d, want %d", tt.extent, tt.stride, got, tt.want)
		}
	}
}

func TestResolveDynamicLastDimIsOne(t *testing.T) {
	t.Parallel()
	for _, strided := range []*gemm.Strided{nil, {RowStride: 64}} {
		v := view(gemm.Symbolic("n"), strided)
		if got := Resolve(v, gemm.F16); got != 1 {
			t.Fatalf("strided=%v: got %d, want 1", strided != nil, got)
		}
	}
	if got := Resolve(gemm.TensorView{}, gemm.F16); got != 1 {
		t.Fatalf("rank-0 view: got %d, want 1", got)
	}
}

func TestResolveOperator(t *testing.T) {
	t.Parallel()
	op := gemm.Operator{
		Name:   "op",
		DType:  gemm.F16,
		A:      gemm.TensorView{Shape: []gemm.Dim{gemm.Symbolic("M"), gemm.Static("K", 64)}},
		B:      gemm.TensorView{Shape: []gemm.Dim{gemm.Static("N", 36), gemm.Static("K", 64)}, Strided: &gemm.Strided{RowStride: 132}},
		Output: gemm.TensorView{Shape: []gemm.Dim{gemm.Symbolic("M"), gemm.Symbolic("N")}},
	}
	got := ResolveOperator(op)
	want := Triple{A: 8, B: 4, Epilogue: 1}
	if got != want {
		t.Fatalf("ResolveOperator = %s, want %s", got, want)
	}
}

func TestCandidates(t *testing.T) {
	t.Parallel()
	got := Candidates(gemm.F16)
	want := []int{8, 4, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("Candidates(f16) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Candidates(f16) = %v, want %v", got, want)
		}
	}
}

func TestTripleCoversAndMin(t *testing.T) {
	t.Parallel()
	limit := Triple{A: 8, B: 4, Epilogue: 2}
	if !limit.Covers(Triple{A: 8, B: 2, Epilogue: 1}) {
		t.Fatal("expected cover")
	}
	if limit.Covers(Triple{A: 8, B: 8, Epilogue: 1}) {
		t.Fatal("B=8 must exceed limit")
	}
	if got := limit.Min(Triple{A: 4, B: 8, Epilogue: 8}); got != (Triple{A: 4, B: 4, Epilogue: 2}) {
		t.Fatalf("Min = %s", got)
	}
}
