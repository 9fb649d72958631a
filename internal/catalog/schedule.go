package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Epilogue functor names as published by the catalog.
const (
	FunctorLinearCombination        = "linear_combination"
	FunctorLinearCombinationRelu    = "linear_combination_relu"
	FunctorLinearCombinationSigmoid = "linear_combination_sigmoid"
)

// KernelSchedule is the 3.x mainloop schedule. Empty means auto.
type KernelSchedule string

const (
	KernelScheduleAuto                          KernelSchedule = ""
	KernelScheduleTmaWarpSpecialized            KernelSchedule = "tma_warp_specialized"
	KernelScheduleTmaWarpSpecializedCooperative KernelSchedule = "tma_warp_specialized_cooperative"
	KernelScheduleTmaWarpSpecializedPingpong    KernelSchedule = "tma_warp_specialized_pingpong"
)

func (s KernelSchedule) Suffix() string {
	switch s {
	case KernelScheduleTmaWarpSpecialized:
		return "_warpspecialized"
	case KernelScheduleTmaWarpSpecializedCooperative:
		return "_warpspecialized_cooperative"
	case KernelScheduleTmaWarpSpecializedPingpong:
		return "_warpspecialized_pingpong"
	default:
		return ""
	}
}

func (s KernelSchedule) CType() string {
	if s == KernelScheduleAuto {
		return "cutlass::gemm::collective::KernelScheduleAuto"
	}
	return "cutlass::gemm::Kernel" + cutlassName(string(s))
}

// EpilogueSchedule is the 3.x epilogue schedule. Empty means auto.
type EpilogueSchedule string

const (
	EpilogueScheduleAuto                                     EpilogueSchedule = ""
	EpilogueScheduleNoSmemWarpSpecialized                    EpilogueSchedule = "no_smem_warp_specialized"
	EpilogueScheduleTmaWarpSpecialized                       EpilogueSchedule = "tma_warp_specialized"
	EpilogueScheduleTmaWarpSpecializedCooperative            EpilogueSchedule = "tma_warp_specialized_cooperative"
	EpilogueScheduleTmaWarpSpecializedElementwiseRelu        EpilogueSchedule = "tma_warp_specialized_elementwise_relu"
	EpilogueScheduleTmaWarpSpecializedElementwiseSigmoid     EpilogueSchedule = "tma_warp_specialized_elementwise_sigmoid"
	EpilogueScheduleTmaWarpSpecializedCoopElementwiseRelu    EpilogueSchedule = "tma_warp_specialized_cooperative_elementwise_relu"
	EpilogueScheduleTmaWarpSpecializedCoopElementwiseSigmoid EpilogueSchedule = "tma_warp_specialized_cooperative_elementwise_sigmoid"
)

// IsTMA reports whether the schedule writes through the tensor memory accelerator.
func (s EpilogueSchedule) IsTMA() bool {
	return strings.HasPrefix(string(s), "tma")
}

func (s EpilogueSchedule) Suffix() string {
	switch {
	case s == EpilogueScheduleAuto:
		return ""
	case s == EpilogueScheduleNoSmemWarpSpecialized:
		return "_epi_nosmem"
	case strings.HasSuffix(string(s), "_relu"):
		return "_epi_tma_relu"
	case strings.HasSuffix(string(s), "_sigmoid"):
		return "_epi_tma_sigmoid"
	default:
		return "_epi_tma"
	}
}

func (s EpilogueSchedule) CType() string {
	if s == EpilogueScheduleAuto {
		return "cutlass::epilogue::collective::EpilogueScheduleAuto"
	}
	return "cutlass::epilogue::" + cutlassName(string(s))
}

// epilogueScheduleMapping lists the schedules that can be parameterized by a non-default
// epilogue functor.
var epilogueScheduleMapping = map[EpilogueSchedule]map[string]EpilogueSchedule{
	EpilogueScheduleTmaWarpSpecialized: {
		FunctorLinearCombinationRelu:    EpilogueScheduleTmaWarpSpecializedElementwiseRelu,
		FunctorLinearCombinationSigmoid: EpilogueScheduleTmaWarpSpecializedElementwiseSigmoid,
	},
	EpilogueScheduleTmaWarpSpecializedCooperative: {
		FunctorLinearCombinationRelu:    EpilogueScheduleTmaWarpSpecializedCoopElementwiseRelu,
		FunctorLinearCombinationSigmoid: EpilogueScheduleTmaWarpSpecializedCoopElementwiseSigmoid,
	},
}

// SubstituteEpilogueSchedule returns the schedule implementing functor on top of s, and
// false when no such schedule exists.
func SubstituteEpilogueSchedule(s EpilogueSchedule, functor string) (EpilogueSchedule, bool) {
	if functor == FunctorLinearCombination {
		return s, true
	}
	byFunctor, ok := epilogueScheduleMapping[s]
	if !ok {
		return s, false
	}
	mapped, ok := byFunctor[functor]
	return mapped, ok
}

// cutlassName converts a snake_case catalog name to the CamelCase CUTLASS type name.
// Casers keep state, so each call gets its own.
func cutlassName(snake string) string {
	title := cases.Title(language.English).String(strings.ReplaceAll(snake, "_", " "))
	return strings.ReplaceAll(title, " ", "")
}
