package gemm

import (
	"fmt"
	"strings"
)

// DType is an element type as understood by the kernel catalog.
type DType uint8

const (
	DTypeInvalid DType = iota
	F16
	BF16
	F32
	TF32
	F64
	I8
	I32
	U32
)

var dtypeNames = [...]string{
	DTypeInvalid: "invalid",
	F16:          "float16",
	BF16:         "bfloat16",
	F32:          "float32",
	TF32:         "tfloat32",
	F64:          "float64",
	I8:           "int8",
	I32:          "int32",
	U32:          "uint32",
}

var dtypeAliases = map[string]DType{
	"float16":  F16,
	"f16":      F16,
	"half":     F16,
	"bfloat16": BF16,
	"bf16":     BF16,
	"float32":  F32,
	"f32":      F32,
	"float":    F32,
	"tfloat32": TF32,
	"tf32":     TF32,
	"float64":  F64,
	"f64":      F64,
	"int8":     I8,
	"s8":       I8,
	"int32":    I32,
	"s32":      I32,
	"uint32":   U32,
	"u32":      U32,
}

func (d DType) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Size returns the element size in bytes. TF32 is stored in 32 bits.
func (d DType) Size() int {
	switch d {
	case F16, BF16:
		return 2
	case F32, TF32, I32, U32:
		return 4
	case F64:
		return 8
	case I8:
		return 1
	default:
		return 0
	}
}

// Short is the CUTLASS short type name used in kernel keys.
func (d DType) Short() string {
	switch d {
	case F16:
		return "f16"
	case BF16:
		return "bf16"
	case F32:
		return "f32"
	case TF32:
		return "tf32"
	case F64:
		return "f64"
	case I8:
		return "s8"
	case I32:
		return "s32"
	case U32:
		return "u32"
	default:
		return "unknown"
	}
}

// CType is the device-side C++ type tag.
func (d DType) CType() string {
	switch d {
	case F16:
		return "cutlass::half_t"
	case BF16:
		return "cutlass::bfloat16_t"
	case F32:
		return "float"
	case TF32:
		return "cutlass::tfloat32_t"
	case F64:
		return "double"
	case I8:
		return "int8_t"
	case I32:
		return "int32_t"
	case U32:
		return "uint32_t"
	default:
		return "void"
	}
}

func (d DType) MarshalText() ([]byte, error) {
	if d == DTypeInvalid || int(d) >= len(dtypeNames) {
		return nil, fmt.Errorf("gemm: cannot marshal %s", d)
	}
	return []byte(d.String()), nil
}

func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDType accepts the canonical names and the common short forms.
func ParseDType(s string) (DType, error) {
	if v, ok := dtypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return DTypeInvalid, fmt.Errorf("gemm: unknown dtype %q", s)
}

// Layout is the matrix storage order.
type Layout uint8

const (
	RowMajor Layout = iota
	ColumnMajor
)

func (l Layout) String() string {
	if l == ColumnMajor {
		return "column"
	}
	return "row"
}

// Short is the BLAS-style transpose letter: 't' for row-major, 'n' for column-major.
func (l Layout) Short() string {
	if l == ColumnMajor {
		return "n"
	}
	return "t"
}

func (l Layout) CType() string {
	if l == ColumnMajor {
		return "cutlass::layout::ColumnMajor"
	}
	return "cutlass::layout::RowMajor"
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Layout) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "row", "row_major", "rowmajor", "r":
		*l = RowMajor
	case "column", "col", "column_major", "columnmajor", "c":
		*l = ColumnMajor
	default:
		return fmt.Errorf("gemm: unknown layout %q", string(b))
	}
	return nil
}

// Epilogue is the post-accumulation transformation requested by the operator.
type Epilogue uint8

const (
	EpilogueIdentity Epilogue = iota
	EpilogueBias
	EpilogueBiasRelu
	EpilogueBiasSigmoid
	EpilogueRelu
	EpilogueSigmoid
)

var epilogueNames = [...]string{
	EpilogueIdentity:    "identity",
	EpilogueBias:        "bias",
	EpilogueBiasRelu:    "bias_relu",
	EpilogueBiasSigmoid: "bias_sigmoid",
	EpilogueRelu:        "relu",
	EpilogueSigmoid:     "sigmoid",
}

func (e Epilogue) String() string {
	if int(e) < len(epilogueNames) {
		return epilogueNames[e]
	}
	return fmt.Sprintf("epilogue(%d)", uint8(e))
}

// HasBias reports whether the epilogue reads a bias vector as its source operand.
func (e Epilogue) HasBias() bool {
	return e == EpilogueBias || e == EpilogueBiasRelu || e == EpilogueBiasSigmoid
}

// Functor is the snake_case name of the catalog epilogue functor implementing e.
func (e Epilogue) Functor() string {
	switch e {
	case EpilogueBiasRelu, EpilogueRelu:
		return "linear_combination_relu"
	case EpilogueBiasSigmoid, EpilogueSigmoid:
		return "linear_combination_sigmoid"
	default:
		return "linear_combination"
	}
}

func (e Epilogue) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *Epilogue) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	if s == "" {
		*e = EpilogueIdentity
		return nil
	}
	for i, name := range epilogueNames {
		if name == s {
			*e = Epilogue(i)
			return nil
		}
	}
	return fmt.Errorf("gemm: unknown epilogue %q", string(b))
}
