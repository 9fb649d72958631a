package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/gemmforge/internal/autotune"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/pipeline"
	"github.com/samcharles93/gemmforge/internal/profiler"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// errorStatus maps pipeline errors to an HTTP status and error type.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, profiler.ErrMalformedRecord),
		errors.Is(err, pipeline.ErrDynamicShape):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, pipeline.ErrUnknownCandidate):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, gemm.ErrNoFeasibleKernel):
		return http.StatusUnprocessableEntity, "no_feasible_kernel"
	case errors.Is(err, autotune.ErrNoRecords):
		return http.StatusUnprocessableEntity, "no_records"
	case errors.Is(err, profiler.ErrOutOfMemory):
		return http.StatusUnprocessableEntity, "out_of_memory"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
