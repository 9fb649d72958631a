// Package selection narrows a kernel catalog to the candidates that can run an operator.
package selection

import (
	"fmt"

	"github.com/samcharles93/gemmforge/internal/alignment"
	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/ordered"
)

// Candidate is one kernel that survived filtering.
type Candidate struct {
	// Key is the catalog key of Kernel. It names the candidate in profiling output.
	Key string
	// Kernel is the catalog kernel with the operator's output layout and epilogue applied.
	// Its alignments are the declared ones.
	Kernel catalog.Kernel
	// Alignment is the alignment the kernel runs with for this operator.
	Alignment alignment.Triple
}

// Effective returns the kernel with its alignments set to the effective ones.
func (c Candidate) Effective() catalog.Kernel {
	return c.Kernel.WithAlignments(c.Alignment.A, c.Alignment.B, c.Alignment.Epilogue)
}

// Rejection records why a catalog kernel was dropped.
type Rejection struct {
	Key    string
	Reason string
}

// Set is the ordered result of Filter: adjustable-alignment kernels first, then the
// fixed-alignment family, each in catalog order.
type Set struct {
	*ordered.Map[string, Candidate]
	// TMAEpilogue is set when the fixed family was restricted to TMA epilogues.
	TMAEpilogue bool
	Rejected    []Rejection
}

// Candidates returns the candidates in order.
func (s *Set) Candidates() []Candidate {
	if s == nil {
		return nil
	}
	return s.Values()
}

// Filter returns the kernels of kernels compatible with op on target, given the operator's
// alignment triple. The result depends only on its inputs.
func Filter(kernels []catalog.Kernel, op gemm.Operator, triple alignment.Triple, target gemm.Target) *Set {
	set := &Set{Map: ordered.New[string, Candidate]()}
	var adjustable, fixed []Candidate
	for _, k := range kernels {
		c, reason := admit(k, op, triple, target)
		if reason != "" {
			set.Rejected = append(set.Rejected, Rejection{Key: catalog.Key(k), Reason: reason})
			continue
		}
		if k.Variant().Adjustable {
			adjustable = append(adjustable, c)
		} else {
			fixed = append(fixed, c)
		}
	}

	// Within the fixed family, TMA epilogues win whenever one qualifies. The restriction is
	// applied to survivors only, so it never empties a non-empty family.
	var tma []Candidate
	for _, c := range fixed {
		if c.Kernel.TMAEpilogue() {
			tma = append(tma, c)
		}
	}
	if len(tma) > 0 {
		for _, c := range fixed {
			if !c.Kernel.TMAEpilogue() {
				set.Rejected = append(set.Rejected, Rejection{Key: c.Key, Reason: "non-TMA epilogue in a family with TMA epilogues"})
			}
		}
		fixed = tma
		set.TMAEpilogue = true
	}

	for _, c := range append(adjustable, fixed...) {
		if set.Has(c.Key) {
			set.Rejected = append(set.Rejected, Rejection{Key: c.Key, Reason: "duplicate key"})
			continue
		}
		set.Set(c.Key, c)
	}
	return set
}

func admit(k catalog.Kernel, op gemm.Operator, triple alignment.Triple, target gemm.Target) (Candidate, string) {
	v := k.Variant()
	arch := target.Arch
	if arch == 0 {
		arch = gemm.DefaultArch
	}

	if k.OpClass == catalog.OpClassSimt && !target.AllowSIMT {
		return Candidate{}, "simt kernel"
	}
	if v.Sparse != op.Sparse() {
		return Candidate{}, fmt.Sprintf("sparse=%t, operator sparse=%t", v.Sparse, op.Sparse())
	}
	if k.Arch > arch {
		return Candidate{}, fmt.Sprintf("needs sm%d, target sm%d", k.Arch, arch)
	}
	// 3.x kernels use sm90 only instructions and do not run on later generations either.
	if v.Generation == 3 && (k.Arch/10 != 9 || arch/10 != 9) {
		return Candidate{}, fmt.Sprintf("3.x kernel for sm%d on sm%d", k.Arch, arch)
	}

	if k.A.Element != op.DType || k.B.Element != op.DType {
		return Candidate{}, fmt.Sprintf("operand type %s/%s", k.A.Element, k.B.Element)
	}
	if k.C.Element != op.OutDType() {
		return Candidate{}, fmt.Sprintf("output type %s", k.C.Element)
	}
	if acc := target.Accumulator(op); k.Accumulator != acc {
		return Candidate{}, fmt.Sprintf("accumulator %s, want %s", k.Accumulator, acc)
	}
	if k.A.Layout != op.Layout.A || k.B.Layout != op.Layout.B {
		return Candidate{}, fmt.Sprintf("layout %s%s", k.A.Layout.Short(), k.B.Layout.Short())
	}
	if op.DType == gemm.F32 {
		switch k.MathElement {
		case gemm.F32, gemm.DTypeInvalid:
		case gemm.TF32:
			if target.NoTF32 {
				return Candidate{}, "tf32 math disabled"
			}
		default:
			return Candidate{}, fmt.Sprintf("math type %s for float32 operands", k.MathElement)
		}
	}
	// 128x32 tiles with column-major output fail to build.
	if op.Layout.C == gemm.ColumnMajor && k.Threadblock.M() == 128 && k.Threadblock.N() == 32 {
		return Candidate{}, "128x32 tile with column-major output"
	}

	k = k.Clone()
	k.C.Layout = op.Layout.C
	functor := op.Epilogue.Functor()
	if !k.SupportsFunctor(functor) {
		return Candidate{}, "epilogue " + functor + " unsupported"
	}
	k.EpilogueFunctor = functor
	if !v.Adjustable && functor != catalog.FunctorLinearCombination {
		sched, ok := catalog.SubstituteEpilogueSchedule(k.EpilogueSchedule, functor)
		if !ok {
			return Candidate{}, fmt.Sprintf("no %s variant of epilogue schedule %q", functor, k.EpilogueSchedule)
		}
		k.EpilogueSchedule = sched
	}

	declared := alignment.Triple{A: k.A.Alignment, B: k.B.Alignment, Epilogue: k.C.Alignment}
	eff := declared
	if v.Adjustable {
		eff = declared.Min(triple)
	} else if !triple.Covers(declared) {
		return Candidate{}, fmt.Sprintf("alignment %s exceeds %s", declared, triple)
	}
	return Candidate{Key: catalog.Key(k), Kernel: k, Alignment: eff}, ""
}
