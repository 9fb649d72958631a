package gemm

// Target is the compilation target the filter decisions depend on. It is passed explicitly
// to every stage that needs it.
type Target struct {
	// Arch is the compute capability, e.g. 80 for Ampere or 90 for Hopper.
	Arch int `json:"arch" yaml:"arch"`
	// NoTF32 forbids tf32 math for float32 operators.
	NoTF32 bool `json:"no_tf32,omitempty" yaml:"no_tf32,omitempty"`
	// UseFP16Acc accumulates float16 operators in float16.
	UseFP16Acc bool `json:"use_fp16_acc,omitempty" yaml:"use_fp16_acc,omitempty"`
	// AllowSIMT keeps non tensor-core kernels.
	AllowSIMT bool `json:"allow_simt,omitempty" yaml:"allow_simt,omitempty"`

	// Device facts used for dry-run pool planning. Zero means unknown.
	L2CacheBytes      int64 `json:"l2_cache_bytes,omitempty" yaml:"l2_cache_bytes,omitempty"`
	DeviceMemoryBytes int64 `json:"device_memory_bytes,omitempty" yaml:"device_memory_bytes,omitempty"`
}

const DefaultArch = 80

func DefaultTarget() Target {
	return Target{Arch: DefaultArch}
}

// Generation is the major compute capability (8 for sm80/sm86, 9 for sm90).
func (t Target) Generation() int {
	arch := t.Arch
	if arch == 0 {
		arch = DefaultArch
	}
	return arch / 10
}

// Accumulator returns the accumulation type for op on this target.
func (t Target) Accumulator(op Operator) DType {
	acc := op.Accumulator
	if acc == DTypeInvalid {
		acc = F32
	}
	if t.UseFP16Acc && op.DType == F16 {
		acc = F16
	}
	return acc
}
