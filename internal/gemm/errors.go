package gemm

import (
	"errors"
	"fmt"
)

var ErrNoFeasibleKernel = errors.New("operator has no feasible kernel")

// NoKernelError carries what is needed to reproduce an empty candidate set.
type NoKernelError struct {
	Operator   string
	DType      DType
	Layout     Layouts
	Epilogue   Epilogue
	Problem    Problem
	Alignments [3]int // A, B, epilogue
	Arch       int
	Reason     string
}

func (e *NoKernelError) Error() string {
	msg := fmt.Sprintf("%s: %s dtype=%s layout=%s epilogue=%s %s align=%d/%d/%d sm%d",
		ErrNoFeasibleKernel, e.Operator, e.DType, e.Layout, e.Epilogue, e.Problem,
		e.Alignments[0], e.Alignments[1], e.Alignments[2], e.Arch)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *NoKernelError) Unwrap() error { return ErrNoFeasibleKernel }
