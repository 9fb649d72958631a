package codegen

import (
	"fmt"
	"strings"

	"github.com/samcharles93/gemmforge/internal/gemm"
)

// Operand is one pointer argument of a generated function together with the dimension
// pointers that size it. The same list drives the function signature, the pre-launch
// guards and the Go model of those guards.
type Operand struct {
	// Prefix names the C++ arguments: <prefix>_ptr and <prefix>_dim<i>.
	Prefix string
	// Role is used in diagnostics: "input a", "output c".
	Role   string
	View   gemm.TensorView
	Output bool
}

func (o Operand) Ptr() string { return o.Prefix + "_ptr" }

// Dims returns the dimension pointer argument names.
func (o Operand) Dims() []string {
	out := make([]string, o.View.Rank())
	for i := range out {
		out[i] = fmt.Sprintf("%s_dim%d", o.Prefix, i)
	}
	return out
}

// Operands lists the pointer arguments of op in signature order: A, B, optional metadata,
// optional bias, then the output.
func Operands(op gemm.Operator) []Operand {
	out := []Operand{
		{Prefix: "a", Role: "input a", View: op.A},
		{Prefix: "b", Role: "input b", View: op.B},
	}
	if op.Metadata != nil {
		out = append(out, Operand{Prefix: "m", Role: "input m", View: *op.Metadata})
	}
	if op.Bias != nil {
		out = append(out, Operand{Prefix: "bias", Role: "input bias", View: *op.Bias})
	}
	return append(out, Operand{Prefix: "c", Role: "output c", View: op.Output, Output: true})
}

// OperandState is the runtime view of one operand: its element count and whether its
// pointer is null.
type OperandState struct {
	Size int64
	Null bool
}

// EvaluateGuards mirrors the checks generated code runs before a launch. Inputs are
// validated first; an empty output returns without launching; a null output is an error;
// an empty input returns without launching. launch reports whether the kernel would run.
func EvaluateGuards(operands []Operand, states []OperandState) (launch bool, err error) {
	if len(operands) != len(states) {
		return false, fmt.Errorf("codegen: %d operands, %d states", len(operands), len(states))
	}
	emptyInput := false
	outIdx := -1
	for i, o := range operands {
		if o.Output {
			outIdx = i
			continue
		}
		s := states[i]
		if s.Size != 0 && s.Null {
			return false, fmt.Errorf("%w: %s", ErrNullOperand, o.Role)
		}
		if s.Size == 0 {
			emptyInput = true
		}
	}
	if outIdx < 0 {
		return false, fmt.Errorf("codegen: no output operand")
	}
	out := states[outIdx]
	if out.Size == 0 {
		return false, nil
	}
	if out.Null {
		return false, fmt.Errorf("%w: %s", ErrNullOperand, operands[outIdx].Role)
	}
	return !emptyInput, nil
}

// renderGuards emits the checks EvaluateGuards models.
func renderGuards(operands []Operand, indent string) string {
	var sb strings.Builder
	var inputs []string
	var output Operand
	for _, o := range operands {
		fmt.Fprintf(&sb, "%sint64_t %s_size = 1;\n", indent, o.Prefix)
		for _, d := range o.Dims() {
			fmt.Fprintf(&sb, "%s%s_size *= *%s;\n", indent, o.Prefix, d)
		}
		if o.Output {
			output = o
			continue
		}
		inputs = append(inputs, o.Prefix+"_size == 0")
		fmt.Fprintf(&sb, "%sif (%s_size != 0 && !%s) {\n", indent, o.Prefix, o.Ptr())
		fmt.Fprintf(&sb, "%s  throw std::runtime_error(\"%s is null!\");\n", indent, o.Role)
		fmt.Fprintf(&sb, "%s}\n", indent)
	}
	fmt.Fprintf(&sb, "%sif (%s_size == 0) {\n", indent, output.Prefix)
	fmt.Fprintf(&sb, "%s  // empty output, nothing to compute\n", indent)
	fmt.Fprintf(&sb, "%s  return;\n", indent)
	fmt.Fprintf(&sb, "%s}\n", indent)
	fmt.Fprintf(&sb, "%sif (!%s) {\n", indent, output.Ptr())
	fmt.Fprintf(&sb, "%s  throw std::runtime_error(\"%s is null!\");\n", indent, output.Role)
	fmt.Fprintf(&sb, "%s}\n", indent)
	if len(inputs) > 0 {
		fmt.Fprintf(&sb, "%sif (%s) {\n", indent, strings.Join(inputs, " || "))
		fmt.Fprintf(&sb, "%s  return;\n", indent)
		fmt.Fprintf(&sb, "%s}\n", indent)
	}
	return sb.String()
}
