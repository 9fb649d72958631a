// Package pipeline runs the selection stages for one operator in order and logs what each
// stage decided.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/gemmforge/internal/alignment"
	"github.com/samcharles93/gemmforge/internal/autotune"
	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/codegen"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/logger"
	"github.com/samcharles93/gemmforge/internal/ordered"
	"github.com/samcharles93/gemmforge/internal/selection"
)

var (
	ErrUnknownCandidate = errors.New("kernel is not a candidate for the operator")
	// ErrDynamicShape means tuning was asked for an operator whose N or K is not static.
	ErrDynamicShape = errors.New("tuning needs static N and K")
)

// Compiler holds what every stage needs: the catalog and the target. It has no mutable
// state and may be shared.
type Compiler struct {
	Catalog []catalog.Kernel
	Target  gemm.Target
	Log     logger.Logger
}

// Selection is the outcome of filtering the catalog for one operator.
type Selection struct {
	Op        gemm.Operator
	Alignment alignment.Triple
	Set       *selection.Set
}

func (c *Compiler) opLog(op gemm.Operator) logger.Logger {
	log := c.Log
	if log == nil {
		log = logger.Default()
	}
	return log.With("op", op.Name)
}

// Candidates validates op, resolves its alignment and filters the catalog. An empty
// candidate set is a *gemm.NoKernelError.
func (c *Compiler) Candidates(op gemm.Operator) (Selection, error) {
	if err := op.Validate(); err != nil {
		return Selection{}, err
	}
	log := c.opLog(op)
	triple := alignment.ResolveOperator(op)
	set := selection.Filter(c.Catalog, op, triple, c.Target)
	for _, r := range set.Rejected {
		log.Debug("kernel dropped", "key", r.Key, "reason", r.Reason)
	}
	log.Info("candidates filtered",
		"catalog", len(c.Catalog),
		"candidates", set.Len(),
		"alignment", triple.String(),
		"tma_epilogue", set.TMAEpilogue,
	)
	sel := Selection{Op: op, Alignment: triple, Set: set}
	if set.Len() == 0 {
		return sel, c.noKernel(op, triple, fmt.Sprintf("all %d catalog kernels rejected", len(c.Catalog)))
	}
	return sel, nil
}

// Profiler filters the catalog and renders the benchmark harness for the candidates.
func (c *Compiler) Profiler(op gemm.Operator, runID string) (codegen.Harness, Selection, error) {
	sel, err := c.Candidates(op)
	if err != nil {
		return codegen.Harness{}, sel, err
	}
	log := c.opLog(op)
	h, err := codegen.GenerateHarness(sel.Set, op, codegen.HarnessOptions{Target: c.Target, RunID: runID})
	for _, s := range h.Skipped {
		log.Warn("candidate skipped", "key", s.Key, "error", s.Err)
	}
	if err != nil {
		return h, sel, err
	}
	if h.Plan != nil {
		if h.Plan.SharedInputs {
			log.Warn("working set does not fit, inputs share one buffer", "bytes", h.Plan.TotalBytes)
		} else {
			log.Debug("working set planned", "copies", h.Plan.Copies, "bytes", h.Plan.TotalBytes)
		}
	}
	log.Info("harness generated", "candidates", len(h.Candidates), "skipped", len(h.Skipped))
	return h, sel, nil
}

// Dispatch emits the production function for the candidate named key. An empty key picks
// the first candidate.
func (c *Compiler) Dispatch(op gemm.Operator, key string) (codegen.Dispatch, error) {
	sel, err := c.Candidates(op)
	if err != nil {
		return codegen.Dispatch{}, err
	}
	var cand selection.Candidate
	if key == "" {
		cand = sel.Set.Values()[0]
	} else {
		var ok bool
		if cand, ok = sel.Set.Get(key); !ok {
			return codegen.Dispatch{}, fmt.Errorf("pipeline: %s: %q: %w", op.Name, key, ErrUnknownCandidate)
		}
	}
	d, err := codegen.EmitDispatch(cand.Kernel, op)
	if err != nil {
		return d, err
	}
	c.opLog(op).Info("dispatch emitted", "key", cand.Key, "instance", d.Instances[0].Name, "split_k", d.SplitK)
	return d, nil
}

// Tune benchmarks the candidates of op at every M in ms, caching winners in tuner, and
// emits a dispatch function that branches on M. N and K must be static.
func (c *Compiler) Tune(ctx context.Context, op gemm.Operator, tuner *autotune.Autotuner, run autotune.RunFunc, ms []int64) (codegen.Dispatch, error) {
	if len(ms) == 0 {
		return codegen.Dispatch{}, fmt.Errorf("pipeline: %s: no M values to tune", op.Name)
	}
	sel, err := c.Candidates(op)
	if err != nil {
		return codegen.Dispatch{}, err
	}
	n, k, err := staticNK(op)
	if err != nil {
		return codegen.Dispatch{}, err
	}
	log := c.opLog(op)
	for _, m := range ms {
		shape := autotune.Shape{Op: op.Name, M: m, N: n, K: k, SplitK: op.SplitKFactor()}
		r, err := tuner.Tune(ctx, shape, sel.Set, run)
		if err != nil {
			return codegen.Dispatch{}, fmt.Errorf("pipeline: %s: tune M=%d: %w", op.Name, m, err)
		}
		log.Info("winner", "m", m, "key", r.Key, "time_ms", r.TimeMs, "workspace", r.WorkspaceBytes)
	}
	return c.tunedDispatch(op, sel, tuner, n, k)
}

// TunedDispatch emits a dispatch function from the winners already cached in tuner for
// op's N, K and split-K. Every winner must still be a candidate of op on this compiler's
// target; a cached winner for a different operator sharing op's name is
// ErrUnknownCandidate, never a silently mistyped kernel.
func (c *Compiler) TunedDispatch(op gemm.Operator, tuner *autotune.Autotuner) (codegen.Dispatch, error) {
	if err := op.Validate(); err != nil {
		return codegen.Dispatch{}, err
	}
	n, k, err := staticNK(op)
	if err != nil {
		return codegen.Dispatch{}, err
	}
	sel, err := c.Candidates(op)
	if err != nil {
		return codegen.Dispatch{}, err
	}
	return c.tunedDispatch(op, sel, tuner, n, k)
}

func (c *Compiler) tunedDispatch(op gemm.Operator, sel Selection, tuner *autotune.Autotuner, n, k int64) (codegen.Dispatch, error) {
	tuned := tuner.ExecPaths(op.Name, n, k, op.SplitKFactor())
	if tuned.Len() == 0 {
		return codegen.Dispatch{}, fmt.Errorf("pipeline: %s: n=%d k=%d: %w", op.Name, n, k, autotune.ErrNoRecords)
	}
	paths := ordered.New[string, catalog.Kernel]()
	for cond, r := range tuned.All() {
		cand, ok := sel.Set.Get(r.Key)
		if !ok {
			return codegen.Dispatch{}, fmt.Errorf("pipeline: %s: tuned winner %q: %w", op.Name, r.Key, ErrUnknownCandidate)
		}
		paths.Set(cond, cand.Kernel)
	}
	return c.DispatchPaths(op, paths)
}

func staticNK(op gemm.Operator) (n, k int64, err error) {
	p := op.Problem()
	if !p.N.IsStatic() || !p.K.IsStatic() {
		return 0, 0, fmt.Errorf("pipeline: %s: %w, got %s", op.Name, ErrDynamicShape, p)
	}
	return p.N.Value, p.K.Value, nil
}

// DispatchPaths emits a dispatch function over explicit exec conditions.
func (c *Compiler) DispatchPaths(op gemm.Operator, paths *ordered.Map[string, catalog.Kernel]) (codegen.Dispatch, error) {
	d, err := codegen.EmitDispatchPaths(op, paths)
	if err != nil {
		return d, err
	}
	c.opLog(op).Info("dispatch emitted", "paths", paths.Len(), "instances", len(d.Instances), "split_k", d.SplitK)
	return d, nil
}

func (c *Compiler) noKernel(op gemm.Operator, triple alignment.Triple, reason string) error {
	arch := c.Target.Arch
	if arch == 0 {
		arch = gemm.DefaultArch
	}
	return &gemm.NoKernelError{
		Operator:   op.Name,
		DType:      op.DType,
		Layout:     op.Layout,
		Epilogue:   op.Epilogue,
		Problem:    op.Problem(),
		Alignments: triple.Array(),
		Arch:       arch,
		Reason:     reason,
	}
}
