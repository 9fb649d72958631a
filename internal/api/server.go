// Package api serves the selection pipeline over HTTP: candidate listing, harness and
// dispatch generation, and winner selection from reported benchmark records.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/gemmforge/internal/autotune"
	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/codegen"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/ordered"
	"github.com/samcharles93/gemmforge/internal/pipeline"
	"github.com/samcharles93/gemmforge/internal/profiler"
)

type Server struct {
	compiler *pipeline.Compiler
	tuner    *autotune.Autotuner
}

func NewServer(compiler *pipeline.Compiler, tuner *autotune.Autotuner) *Server {
	if tuner == nil {
		tuner = autotune.New()
	}
	return &Server{
		compiler: compiler,
		tuner:    tuner,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/catalog", s.handleCatalog)
	e.POST("/v1/candidates", s.handleCandidates)
	e.POST("/v1/profilers", s.handleProfiler)
	e.POST("/v1/dispatch", s.handleDispatch)
	e.POST("/v1/select", s.handleSelect)
}

// compilerFor returns the server's compiler, retargeted when the request names a target.
func (s *Server) compilerFor(req OperatorRequest) (*pipeline.Compiler, error) {
	if err := req.Operator.Validate(); err != nil {
		return nil, newInvalidRequest(err.Error())
	}
	if req.Target == nil {
		return s.compiler, nil
	}
	c := *s.compiler
	c.Target = *req.Target
	return &c, nil
}

func (s *Server) handleCatalog(c *echo.Context) error {
	keys := make([]string, len(s.compiler.Catalog))
	for i, k := range s.compiler.Catalog {
		keys[i] = catalog.Key(k)
	}
	return c.JSON(http.StatusOK, CatalogResponse{Kernels: len(keys), Keys: keys})
}

func (s *Server) handleCandidates(c *echo.Context) error {
	req, err := decodeJSON[OperatorRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	compiler, err := s.compilerFor(req)
	if err != nil {
		return writeFailure(c, err)
	}
	sel, err := compiler.Candidates(req.Operator)
	if err != nil {
		return writeFailure(c, err)
	}
	resp := CandidatesResponse{
		RunID:       newRunID(),
		Operator:    req.Operator.Name,
		Alignment:   sel.Alignment,
		TMAEpilogue: sel.Set.TMAEpilogue,
		Candidates:  make([]CandidateItem, 0, sel.Set.Len()),
	}
	for _, cand := range sel.Set.Candidates() {
		resp.Candidates = append(resp.Candidates, CandidateItem{
			Key:       cand.Key,
			Kind:      cand.Kernel.Kind.String(),
			Alignment: cand.Alignment,
		})
	}
	for _, r := range sel.Set.Rejected {
		resp.Rejected = append(resp.Rejected, RejectionItem{Key: r.Key, Reason: r.Reason})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProfiler(c *echo.Context) error {
	req, err := decodeJSON[OperatorRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	compiler, err := s.compilerFor(req)
	if err != nil {
		return writeFailure(c, err)
	}
	runID := newRunID()
	h, _, err := compiler.Profiler(req.Operator, runID)
	if err != nil {
		return writeFailure(c, err)
	}
	resp := ProfilerResponse{
		RunID:      runID,
		Operator:   req.Operator.Name,
		Source:     h.Source,
		Candidates: h.Candidates,
		Plan:       h.Plan,
	}
	for _, sk := range h.Skipped {
		resp.Skipped = append(resp.Skipped, SkippedItem{Key: sk.Key, Error: sk.Err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDispatch(c *echo.Context) error {
	req, err := decodeJSON[DispatchRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	compiler, err := s.compilerFor(req.OperatorRequest)
	if err != nil {
		return writeFailure(c, err)
	}
	op := req.Operator

	modes := 0
	for _, given := range []bool{req.Key != "", len(req.Paths) > 0, req.Tuned} {
		if given {
			modes++
		}
	}
	if modes > 1 {
		return writeBadRequest(c, "key, paths and tuned are mutually exclusive")
	}

	var d codegen.Dispatch
	switch {
	case len(req.Paths) > 0:
		sel, cerr := compiler.Candidates(op)
		if cerr != nil {
			return writeFailure(c, cerr)
		}
		paths := ordered.New[string, catalog.Kernel]()
		for _, p := range req.Paths {
			cand, ok := sel.Set.Get(p.Key)
			if !ok {
				return writeFailure(c, fmt.Errorf("%q: %w", p.Key, pipeline.ErrUnknownCandidate))
			}
			if strings.TrimSpace(p.Cond) == "" {
				return writeBadRequest(c, "exec path for "+p.Key+" has no condition")
			}
			paths.Set(p.Cond, cand.Kernel)
		}
		d, err = compiler.DispatchPaths(op, paths)
	case req.Tuned:
		d, err = compiler.TunedDispatch(op, s.tuner)
	default:
		d, err = compiler.Dispatch(op, req.Key)
	}
	if err != nil {
		return writeFailure(c, err)
	}
	resp := DispatchResponse{
		RunID:  newRunID(),
		Name:   d.Name,
		Source: d.Source,
		Decl:   d.Decl,
		Call:   d.Call,
		SplitK: d.SplitK,
	}
	for _, inst := range d.Instances {
		resp.Instances = append(resp.Instances, inst.Name)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSelect(c *echo.Context) error {
	req, err := decodeJSON[SelectRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	compiler, err := s.compilerFor(req.OperatorRequest)
	if err != nil {
		return writeFailure(c, err)
	}
	if req.M <= 0 {
		return writeBadRequest(c, "m must be positive")
	}
	records := req.Records
	if req.Output != "" {
		parsed, err := profiler.ParseRecords(strings.NewReader(req.Output))
		if err != nil {
			return writeFailure(c, err)
		}
		records = append(records, parsed...)
	}

	shape, err := shapeFor(req)
	if err != nil {
		return writeFailure(c, err)
	}
	sel, err := compiler.Candidates(req.Operator)
	if err != nil {
		return writeFailure(c, err)
	}
	winner, err := autotune.SelectWinner(sel.Set, records)
	if err != nil {
		return writeFailure(c, err)
	}
	s.tuner.Store(shape, winner)
	return c.JSON(http.StatusOK, SelectResponse{RunID: newRunID(), Shape: shape, Winner: winner})
}

// shapeFor fills N and K from the operator when the request leaves them out.
func shapeFor(req SelectRequest) (autotune.Shape, error) {
	p := req.Operator.Problem()
	shape := autotune.Shape{Op: req.Operator.Name, M: req.M, N: req.N, K: req.K, SplitK: req.SplitK}
	if shape.SplitK == 0 {
		shape.SplitK = req.Operator.SplitKFactor()
	}
	for _, f := range []struct {
		dst *int64
		dim gemm.Dim
		n   string
	}{{&shape.N, p.N, "n"}, {&shape.K, p.K, "k"}} {
		if *f.dst != 0 {
			continue
		}
		if !f.dim.IsStatic() {
			return shape, newInvalidRequest(f.n + " is dynamic for this operator and must be given")
		}
		*f.dst = f.dim.Value
	}
	return shape, nil
}
