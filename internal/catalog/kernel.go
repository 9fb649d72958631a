// Package catalog models the kernel descriptors published by the CUTLASS kernel library:
// their identity keys, the instantiation text they emit, and how they are loaded.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/gemmforge/internal/gemm"
)

// Kind selects the kernel family. Each kind has one Variant describing its alignment policy
// and the shape of its template parameter list.
type Kind uint8

const (
	KindSparse Kind = iota
	KindUniversal
	KindUniversal3x
)

var kindNames = [...]string{
	KindSparse:      "sparse",
	KindUniversal:   "universal",
	KindUniversal3x: "universal3x",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, name := range kindNames {
		if name == s {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("catalog: unknown kernel kind %q", string(b))
}

// Variant is the kind-specific policy.
type Variant struct {
	Kind Kind
	// Adjustable kernels accept any alignment up to the declared one; fixed kernels only
	// run with exactly their declared alignment.
	Adjustable bool
	Sparse     bool
	Generation int // CUTLASS API generation: 2 or 3
	// DeviceType opens the template parameter list in the emitted definition.
	DeviceType string
	// Terminator closes the parameter list on its last line.
	Terminator string
	ParamCount int
	// Parameter indices of the rewritable alignments, -1 when not rewritable.
	AlignA, AlignB, AlignEpilogue int
}

var variants = [...]Variant{
	KindSparse: {
		Kind:          KindSparse,
		Adjustable:    true,
		Sparse:        true,
		Generation:    2,
		DeviceType:    "cutlass::gemm::device::SparseGemm",
		Terminator:    ">;",
		ParamCount:    24,
		AlignA:        20,
		AlignB:        21,
		AlignEpilogue: 14,
	},
	KindUniversal: {
		Kind:          KindUniversal,
		Adjustable:    true,
		Generation:    2,
		DeviceType:    "cutlass::gemm::device::GemmUniversal",
		Terminator:    ">;",
		ParamCount:    23,
		AlignA:        20,
		AlignB:        21,
		AlignEpilogue: 14,
	},
	KindUniversal3x: {
		Kind:          KindUniversal3x,
		Generation:    3,
		DeviceType:    "cutlass::gemm::kernel::GemmUniversal",
		Terminator:    ">",
		ParamCount:    4,
		AlignA:        -1,
		AlignB:        -1,
		AlignEpilogue: -1,
	},
}

// Variant returns the policy for k. Unknown kinds get a zero Variant with ParamCount 0.
func (k Kind) Variant() Variant {
	if int(k) < len(variants) {
		return variants[k]
	}
	return Variant{Kind: k, AlignA: -1, AlignB: -1, AlignEpilogue: -1}
}

// OpClass is the compute unit class of the math instruction.
type OpClass uint8

const (
	OpClassTensorOp OpClass = iota
	OpClassSimt
)

func (c OpClass) String() string {
	if c == OpClassSimt {
		return "simt"
	}
	return "tensorop"
}

func (c OpClass) CType() string {
	if c == OpClassSimt {
		return "cutlass::arch::OpClassSimt"
	}
	return "cutlass::arch::OpClassTensorOp"
}

func (c OpClass) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *OpClass) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "tensorop", "tensor_op", "":
		*c = OpClassTensorOp
	case "simt":
		*c = OpClassSimt
	default:
		return fmt.Errorf("catalog: unknown opcode class %q", string(b))
	}
	return nil
}

// Shape is an M x N x K extent.
type Shape [3]int

func (s Shape) M() int { return s[0] }
func (s Shape) N() int { return s[1] }
func (s Shape) K() int { return s[2] }

// Operand is one operand's element type, layout and declared alignment in elements.
type Operand struct {
	Element   gemm.DType  `json:"element" yaml:"element"`
	Layout    gemm.Layout `json:"layout" yaml:"layout"`
	Alignment int         `json:"alignment" yaml:"alignment"`
}

// Kernel is one catalog entry.
type Kernel struct {
	Kind        Kind       `json:"kind" yaml:"kind"`
	OpClass     OpClass    `json:"op_class" yaml:"op_class"`
	Arch        int        `json:"arch" yaml:"arch"`
	MathElement gemm.DType `json:"math_element,omitempty" yaml:"math_element,omitempty"`
	A           Operand    `json:"a" yaml:"a"`
	B           Operand    `json:"b" yaml:"b"`
	C           Operand    `json:"c" yaml:"c"`
	Accumulator gemm.DType `json:"accumulator" yaml:"accumulator"`

	Threadblock Shape `json:"threadblock" yaml:"threadblock"`
	Warp        Shape `json:"warp,omitempty" yaml:"warp,omitempty"`
	Instruction Shape `json:"instruction" yaml:"instruction"`
	Cluster     Shape `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Stages      int   `json:"stages" yaml:"stages"`
	Swizzle     int   `json:"swizzle,omitempty" yaml:"swizzle,omitempty"`

	EpilogueFunctor  string           `json:"epilogue_functor,omitempty" yaml:"epilogue_functor,omitempty"`
	Epilogues        []string         `json:"epilogues,omitempty" yaml:"epilogues,omitempty"`
	KernelSchedule   KernelSchedule   `json:"kernel_schedule,omitempty" yaml:"kernel_schedule,omitempty"`
	EpilogueSchedule EpilogueSchedule `json:"epilogue_schedule,omitempty" yaml:"epilogue_schedule,omitempty"`

	SplitK bool `json:"split_k,omitempty" yaml:"split_k,omitempty"`

	// Definition is instantiation text produced by an external emitter. When set it is
	// used verbatim instead of the text rendered from the fields above.
	Definition string `json:"definition,omitempty" yaml:"definition,omitempty"`
}

// Clone returns a deep copy.
func (k Kernel) Clone() Kernel {
	k.Epilogues = slices.Clone(k.Epilogues)
	return k
}

func (k Kernel) Variant() Variant { return k.Kind.Variant() }

// Functor is the epilogue functor name, defaulting to linear_combination.
func (k Kernel) Functor() string {
	if k.EpilogueFunctor == "" {
		return FunctorLinearCombination
	}
	return k.EpilogueFunctor
}

// SupportsFunctor reports whether the kernel can run the named epilogue functor.
func (k Kernel) SupportsFunctor(functor string) bool {
	return len(k.Epilogues) == 0 || slices.Contains(k.Epilogues, functor)
}

// TMAEpilogue reports whether the kernel stores its output through an async-copy (TMA)
// epilogue schedule.
func (k Kernel) TMAEpilogue() bool {
	return k.Kind == KindUniversal3x && k.EpilogueSchedule.IsTMA()
}

// Alignments returns the declared {A, B, C} alignments.
func (k Kernel) Alignments() (a, b, c int) {
	return k.A.Alignment, k.B.Alignment, k.C.Alignment
}

// WithAlignments returns a copy with the given operand alignments.
func (k Kernel) WithAlignments(a, b, c int) Kernel {
	out := k.Clone()
	out.A.Alignment = a
	out.B.Alignment = b
	out.C.Alignment = c
	return out
}

// Validate checks the fields the rest of the pipeline assumes.
func (k Kernel) Validate() error {
	if int(k.Kind) >= len(variants) {
		return fmt.Errorf("catalog: unknown kind %s", k.Kind)
	}
	for _, s := range []Shape{k.Threadblock, k.Instruction} {
		if s.M() <= 0 || s.N() <= 0 || s.K() <= 0 {
			return fmt.Errorf("catalog: invalid shape %v", s)
		}
	}
	for i, a := range []int{k.A.Alignment, k.B.Alignment, k.C.Alignment} {
		if a < 1 || a&(a-1) != 0 {
			return fmt.Errorf("catalog: %c alignment %d is not a positive power of two", "ABC"[i], a)
		}
	}
	if k.Arch <= 0 {
		return fmt.Errorf("catalog: missing arch")
	}
	if k.A.Element.Size() == 0 || k.B.Element.Size() == 0 || k.C.Element.Size() == 0 {
		return fmt.Errorf("catalog: missing operand element type")
	}
	return nil
}

// ProblemSize is a resolved problem used for workspace sizing.
type ProblemSize struct {
	M, N, K int64
	SplitK  int
}

// WorkspaceBytes is the scratch memory the kernel needs for p.
func (k Kernel) WorkspaceBytes(p ProblemSize) int64 {
	if p.SplitK <= 1 || !k.SplitK {
		return 0
	}
	tiles := ceilDiv(p.M, int64(k.Threadblock.M())) * ceilDiv(p.N, int64(k.Threadblock.N()))
	if k.Kind == KindUniversal3x {
		// Partial accumulators for every split, reduced by the epilogue.
		tile := int64(k.Threadblock.M()) * int64(k.Threadblock.N()) * int64(k.Accumulator.Size())
		return tiles * tile * int64(p.SplitK)
	}
	// Serial split-K: one semaphore per output tile.
	return tiles * 4
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
