// Package profiler plans the benchmark working set, runs compiled harnesses and parses
// what they report.
package profiler

import (
	"errors"
	"fmt"
)

// Bounds on the number of working-set copies.
const (
	MinCopies = 2
	MaxCopies = 512
)

var ErrOutOfMemory = errors.New("not enough device memory for the profiling working set")

// OutOfMemoryError is returned when even the shared-input fallback does not fit.
type OutOfMemoryError struct {
	Requested       int64
	Available       int64
	MaxOperandBytes int64
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("%s: requested %d bytes, available %d, largest operand %d bytes",
		ErrOutOfMemory, e.Requested, e.Available, e.MaxOperandBytes)
}

func (e *OutOfMemoryError) Unwrap() error { return ErrOutOfMemory }

// TensorSize is one benchmark tensor, in elements.
type TensorSize struct {
	Name   string `json:"name"`
	Elems  int64  `json:"elems"`
	Output bool   `json:"output,omitempty"`
}

// PoolRequest describes the tensors of one benchmark and the device they run on.
type PoolRequest struct {
	ElemBytes    int64
	L2CacheBytes int64
	FreeBytes    int64
	Tensors      []TensorSize
}

// Plan is the working-set layout: Copies rotated copies of every tensor, or, when
// SharedInputs is set, one blob aliased by all inputs plus a single output.
type Plan struct {
	BytesPerCopy int64 `json:"bytes_per_copy"`
	Copies       int   `json:"copies"`
	TotalBytes   int64 `json:"total_bytes"`
	SharedInputs bool  `json:"shared_inputs,omitempty"`
}

// PlanPool sizes the rotation pool so that the working set exceeds the L2 cache: enough
// copies to cover L2 with the largest operand, clamped to [MinCopies, MaxCopies], then
// reduced until the pool fits in free memory. With no copy fitting, inputs share one blob
// sized for the largest input.
func PlanPool(req PoolRequest) (Plan, error) {
	elem := max(req.ElemBytes, 1)
	var perCopy, maxOperand, maxInput, output int64
	for _, t := range req.Tensors {
		perCopy += t.Elems * elem
		maxOperand = max(maxOperand, t.Elems)
		if t.Output {
			output += t.Elems
		} else {
			maxInput = max(maxInput, t.Elems)
		}
	}
	// Keep the divisor non-zero for empty problems.
	maxOperand = max(maxOperand, 1)

	copies := ceilDiv(req.L2CacheBytes, elem*maxOperand)
	copies = min(max(copies, MinCopies), MaxCopies)
	for copies > 0 && copies*perCopy > req.FreeBytes {
		copies--
	}
	if copies > 0 {
		return Plan{
			BytesPerCopy: perCopy,
			Copies:       int(copies),
			TotalBytes:   copies * perCopy,
		}, nil
	}

	total := (maxInput + output) * elem
	if total > req.FreeBytes {
		return Plan{}, &OutOfMemoryError{
			Requested:       total,
			Available:       req.FreeBytes,
			MaxOperandBytes: maxOperand * elem,
		}
	}
	return Plan{
		BytesPerCopy: perCopy,
		Copies:       1,
		TotalBytes:   total,
		SharedInputs: true,
	}, nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
