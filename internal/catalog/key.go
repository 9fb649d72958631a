package catalog

import (
	"fmt"
	"strings"

	"github.com/samcharles93/gemmforge/internal/gemm"
)

// Key is the stable identity of a kernel. It is a pure function of the kernel's parameters,
// so two kernels that differ in tile shape, layout, alignment, schedule or architecture never
// share a key.
//
//	cutlass_sm80_tensorop_s16832spgemm_f16_128x128_64x3_tn_align_8_8
//	cutlass3x_sm90_tensorop_s64x128x16gemm_f16_128x128x64_2x1x1_3_tnt_align_8_8_warpspecialized_cooperative_epi_tma
func Key(k Kernel) string {
	var sb strings.Builder
	if k.Kind == KindUniversal3x {
		fmt.Fprintf(&sb, "cutlass3x_sm%d", k.Arch)
	} else {
		fmt.Fprintf(&sb, "cutlass_sm%d", k.Arch)
	}
	sb.WriteByte('_')
	sb.WriteString(k.OpClass.String())
	sb.WriteByte('_')
	sb.WriteString(ExtendedName(k))
	sb.WriteByte('_')
	sb.WriteString(ProceduralName(k))
	sb.WriteByte('_')
	sb.WriteString(LayoutName(k))
	sb.WriteString("_align_")
	if k.A.Alignment == k.B.Alignment {
		fmt.Fprintf(&sb, "%d", k.A.Alignment)
	} else {
		fmt.Fprintf(&sb, "%dx%d", k.A.Alignment, k.B.Alignment)
	}
	fmt.Fprintf(&sb, "_%d", k.C.Alignment)
	if k.Kind == KindUniversal3x {
		sb.WriteString(k.KernelSchedule.Suffix())
		sb.WriteString(k.EpilogueSchedule.Suffix())
	}
	if f := k.Functor(); f != FunctorLinearCombination {
		sb.WriteByte('_')
		sb.WriteString(strings.TrimPrefix(f, "linear_combination_"))
	}
	return sb.String()
}

// ExtendedName encodes the math instruction and the output element type.
func ExtendedName(k Kernel) string {
	op := "gemm"
	if k.Kind.Variant().Sparse {
		op = "spgemm"
	}
	var core string
	if k.OpClass == OpClassSimt {
		core = accumulatorChar(k.Accumulator) + op
	} else {
		core = fmt.Sprintf("%s%d%d%d%s", accumulatorChar(k.Accumulator),
			k.Instruction.M(), k.Instruction.N(), k.Instruction.K(), op)
		if k.Kind == KindUniversal3x {
			core = fmt.Sprintf("%s%dx%dx%d%s", accumulatorChar(k.Accumulator),
				k.Instruction.M(), k.Instruction.N(), k.Instruction.K(), op)
		}
	}
	if k.MathElement != gemm.DTypeInvalid && k.MathElement != k.A.Element {
		core = k.MathElement.Short() + core
	}
	return core + "_" + k.C.Element.Short()
}

// ProceduralName encodes the threadblock tile and pipeline depth.
func ProceduralName(k Kernel) string {
	tb := k.Threadblock
	if k.Kind == KindUniversal3x {
		c := k.Cluster
		if c == (Shape{}) {
			c = Shape{1, 1, 1}
		}
		return fmt.Sprintf("%dx%dx%d_%dx%dx%d_%d", tb.M(), tb.N(), tb.K(), c.M(), c.N(), c.K(), k.Stages)
	}
	return fmt.Sprintf("%dx%d_%dx%d", tb.M(), tb.N(), tb.K(), k.Stages)
}

// LayoutName is the transpose-letter encoding of the operand layouts. The 2.x naming only
// covers A and B; the 3.x naming includes the output.
func LayoutName(k Kernel) string {
	name := k.A.Layout.Short() + k.B.Layout.Short()
	if k.Kind == KindUniversal3x {
		name += k.C.Layout.Short()
	}
	return name
}

func accumulatorChar(d gemm.DType) string {
	switch d {
	case gemm.F16:
		return "h"
	case gemm.F64:
		return "d"
	case gemm.I32:
		return "i"
	case gemm.BF16:
		return "bf"
	default:
		return "s"
	}
}
