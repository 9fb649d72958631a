package catalog

import (
	"github.com/samcharles93/gemmforge/internal/alignment"
	"github.com/samcharles93/gemmforge/internal/gemm"
)

type tile struct {
	threadblock, warp Shape
	stages            int
}

var (
	row = gemm.RowMajor
	col = gemm.ColumnMajor

	denseLayouts  = [][2]gemm.Layout{{row, row}, {row, col}, {col, row}, {col, col}}
	sparseLayouts = [][2]gemm.Layout{{row, row}, {row, col}}
)

var sm80HalfTiles = []tile{
	{Shape{256, 128, 32}, Shape{64, 64, 32}, 3},
	{Shape{128, 256, 32}, Shape{64, 64, 32}, 3},
	{Shape{128, 128, 32}, Shape{64, 64, 32}, 4},
	{Shape{128, 64, 32}, Shape{64, 32, 32}, 4},
	{Shape{64, 128, 32}, Shape{32, 64, 32}, 4},
	{Shape{128, 32, 32}, Shape{64, 32, 32}, 4},
	{Shape{64, 64, 32}, Shape{32, 32, 32}, 5},
}

var sm80SparseHalfTiles = []tile{
	{Shape{128, 128, 64}, Shape{64, 64, 64}, 3},
	{Shape{128, 64, 64}, Shape{64, 32, 64}, 4},
	{Shape{64, 128, 64}, Shape{32, 64, 64}, 4},
	{Shape{64, 64, 64}, Shape{32, 32, 64}, 4},
}

var sm80SingleTiles = []tile{
	{Shape{128, 128, 32}, Shape{64, 64, 32}, 3},
	{Shape{128, 64, 32}, Shape{64, 32, 32}, 4},
	{Shape{64, 64, 32}, Shape{32, 32, 32}, 4},
}

type schedulePair struct {
	kernel   KernelSchedule
	epilogue EpilogueSchedule
}

var sm90Schedules = []schedulePair{
	{KernelScheduleTmaWarpSpecializedCooperative, EpilogueScheduleTmaWarpSpecializedCooperative},
	{KernelScheduleTmaWarpSpecializedPingpong, EpilogueScheduleTmaWarpSpecialized},
	{KernelScheduleTmaWarpSpecialized, EpilogueScheduleNoSmemWarpSpecialized},
	{KernelScheduleAuto, EpilogueScheduleAuto},
}

// Builtin returns the kernels shipped with the binary: SM80 sparse and universal tensor-op
// kernels for half, bfloat16 and float32 operands, one SIMT fallback and the SM90 3.x
// kernels. Every call returns a fresh slice.
func Builtin() []Kernel {
	var out []Kernel

	for _, acc := range []gemm.DType{gemm.F32, gemm.F16} {
		out = append(out, sm80Family(KindSparse, gemm.F16, gemm.F16, acc, Shape{16, 8, 32}, sparseLayouts, sm80SparseHalfTiles)...)
	}
	out = append(out, sm80Family(KindSparse, gemm.BF16, gemm.BF16, gemm.F32, Shape{16, 8, 32}, sparseLayouts, sm80SparseHalfTiles)...)
	out = append(out, sm80Family(KindSparse, gemm.F32, gemm.TF32, gemm.F32, Shape{16, 8, 16}, sparseLayouts, sm80SingleTiles[:1])...)

	for _, acc := range []gemm.DType{gemm.F32, gemm.F16} {
		out = append(out, sm80Family(KindUniversal, gemm.F16, gemm.F16, acc, Shape{16, 8, 16}, denseLayouts, sm80HalfTiles)...)
	}
	out = append(out, sm80Family(KindUniversal, gemm.BF16, gemm.BF16, gemm.F32, Shape{16, 8, 16}, denseLayouts, sm80HalfTiles)...)
	out = append(out, sm80Family(KindUniversal, gemm.F32, gemm.TF32, gemm.F32, Shape{16, 8, 8}, denseLayouts, sm80SingleTiles)...)
	out = append(out, sm80Family(KindUniversal, gemm.F32, gemm.F32, gemm.F32, Shape{16, 8, 8}, denseLayouts, sm80SingleTiles[:1])...)

	out = append(out, Kernel{
		Kind:            KindUniversal,
		OpClass:         OpClassSimt,
		Arch:            50,
		MathElement:     gemm.F32,
		A:               Operand{Element: gemm.F32, Layout: row, Alignment: 1},
		B:               Operand{Element: gemm.F32, Layout: row, Alignment: 1},
		C:               Operand{Element: gemm.F32, Layout: row, Alignment: 1},
		Accumulator:     gemm.F32,
		Threadblock:     Shape{128, 128, 8},
		Warp:            Shape{32, 64, 8},
		Instruction:     Shape{1, 1, 1},
		Stages:          2,
		Epilogues:       []string{FunctorLinearCombination},
		SplitK:          true,
		EpilogueFunctor: FunctorLinearCombination,
	})

	out = append(out, ExpandEpilogueAlignments(sm90Family(gemm.F16))...)
	out = append(out, ExpandEpilogueAlignments(sm90Family(gemm.BF16))...)
	return out
}

func sm80Family(kind Kind, elem, math, acc gemm.DType, inst Shape, layouts [][2]gemm.Layout, tiles []tile) []Kernel {
	align := alignment.Max(elem)
	var out []Kernel
	for _, l := range layouts {
		for _, t := range tiles {
			out = append(out, Kernel{
				Kind:        kind,
				OpClass:     OpClassTensorOp,
				Arch:        80,
				MathElement: math,
				A:           Operand{Element: elem, Layout: l[0], Alignment: align},
				B:           Operand{Element: elem, Layout: l[1], Alignment: align},
				C:           Operand{Element: elem, Layout: row, Alignment: align},
				Accumulator: acc,
				Threadblock: t.threadblock,
				Warp:        t.warp,
				Instruction: inst,
				Stages:      t.stages,
				SplitK:      kind == KindUniversal,
			})
		}
	}
	return out
}

func sm90Family(elem gemm.DType) []Kernel {
	align := alignment.Max(elem)
	shapes := []struct{ tb, inst, cluster Shape }{
		{Shape{128, 128, 64}, Shape{64, 128, 16}, Shape{2, 1, 1}},
		{Shape{128, 128, 64}, Shape{64, 128, 16}, Shape{1, 1, 1}},
		{Shape{128, 256, 64}, Shape{64, 256, 16}, Shape{1, 2, 1}},
	}
	var out []Kernel
	for _, l := range denseLayouts {
		for _, s := range shapes {
			for _, sched := range sm90Schedules {
				out = append(out, Kernel{
					Kind:             KindUniversal3x,
					OpClass:          OpClassTensorOp,
					Arch:             90,
					MathElement:      elem,
					A:                Operand{Element: elem, Layout: l[0], Alignment: align},
					B:                Operand{Element: elem, Layout: l[1], Alignment: align},
					C:                Operand{Element: elem, Layout: row, Alignment: align},
					Accumulator:      gemm.F32,
					Threadblock:      s.tb,
					Instruction:      s.inst,
					Cluster:          s.cluster,
					KernelSchedule:   sched.kernel,
					EpilogueSchedule: sched.epilogue,
					SplitK:           sched.kernel == KernelScheduleTmaWarpSpecializedCooperative,
				})
			}
		}
	}
	return out
}

// ExpandEpilogueAlignments adds, after each fixed-alignment kernel, copies with every
// smaller supported output alignment so that odd output strides still find a fixed kernel.
// TMA epilogues only run at their declared alignment and are not expanded. Adjustable
// kernels are downgraded by the filter and pass through unchanged.
func ExpandEpilogueAlignments(kernels []Kernel) []Kernel {
	out := make([]Kernel, 0, len(kernels))
	for _, k := range kernels {
		out = append(out, k)
		if k.Variant().Adjustable || k.TMAEpilogue() {
			continue
		}
		for _, c := range alignment.Candidates(k.C.Element) {
			if c >= k.C.Alignment {
				continue
			}
			out = append(out, k.WithAlignments(k.A.Alignment, k.B.Alignment, c))
		}
	}
	return out
}
