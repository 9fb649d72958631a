package api

import (
	"github.com/samcharles93/gemmforge/internal/alignment"
	"github.com/samcharles93/gemmforge/internal/autotune"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/profiler"
)

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OperatorRequest is the body shared by every endpoint: the operator and an optional
// target overriding the server's.
type OperatorRequest struct {
	Operator gemm.Operator `json:"operator"`
	Target   *gemm.Target  `json:"target,omitempty"`
}

type CandidateItem struct {
	Key       string           `json:"key"`
	Kind      string           `json:"kind"`
	Alignment alignment.Triple `json:"alignment"`
}

type RejectionItem struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type CandidatesResponse struct {
	RunID       string           `json:"run_id"`
	Operator    string           `json:"operator"`
	Alignment   alignment.Triple `json:"alignment"`
	TMAEpilogue bool             `json:"tma_epilogue"`
	Candidates  []CandidateItem  `json:"candidates"`
	Rejected    []RejectionItem  `json:"rejected,omitempty"`
}

type SkippedItem struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

type ProfilerResponse struct {
	RunID      string         `json:"run_id"`
	Operator   string         `json:"operator"`
	Source     string         `json:"source"`
	Candidates []string       `json:"candidates"`
	Skipped    []SkippedItem  `json:"skipped,omitempty"`
	Plan       *profiler.Plan `json:"plan,omitempty"`
}

type ExecPath struct {
	Cond string `json:"cond"`
	Key  string `json:"key"`
}

// DispatchRequest selects the kernel by key, by explicit exec paths, or from the shapes
// tuned through /v1/select. With none of them the first candidate is used.
type DispatchRequest struct {
	OperatorRequest
	Key   string     `json:"key,omitempty"`
	Paths []ExecPath `json:"paths,omitempty"`
	Tuned bool       `json:"tuned,omitempty"`
}

type DispatchResponse struct {
	RunID     string   `json:"run_id"`
	Name      string   `json:"name"`
	Source    string   `json:"source"`
	Decl      string   `json:"decl"`
	Call      string   `json:"call"`
	SplitK    bool     `json:"split_k"`
	Instances []string `json:"instances"`
}

// SelectRequest reports benchmark results for one problem, as records or as raw harness
// output.
type SelectRequest struct {
	OperatorRequest
	M       int64             `json:"m"`
	N       int64             `json:"n,omitempty"`
	K       int64             `json:"k,omitempty"`
	SplitK  int               `json:"split_k,omitempty"`
	Records []profiler.Record `json:"records,omitempty"`
	Output  string            `json:"output,omitempty"`
}

type SelectResponse struct {
	RunID  string          `json:"run_id"`
	Shape  autotune.Shape  `json:"shape"`
	Winner autotune.Result `json:"winner"`
}

type CatalogResponse struct {
	Kernels int      `json:"kernels"`
	Keys    []string `json:"keys"`
}
