// Package codegen turns selected kernels into C++/CUDA source: per-kernel instances, the
// profiling harness that times every candidate, and the dispatch function that calls the
// chosen kernel.
package codegen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samcharles93/gemmforge/internal/alignment"
	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/gemm"
)

// Instance is a kernel definition ready to be pasted into generated source.
type Instance struct {
	// Name is the alias generated code refers to. It is derived from the effective kernel's
	// key, so equal parameters always give equal names.
	Name string
	// Config is the type declared by Definition.
	Config string
	// Definition is the instantiation text after alignment rewriting.
	Definition string
	// Params is the template parameter list, one entry per parameter.
	Params []string
	// Kernel carries the alignments Definition was written with.
	Kernel catalog.Kernel
}

// Code returns the definition followed by the alias for Name.
func (i Instance) Code() string {
	var sb strings.Builder
	sb.WriteString(i.Definition)
	if !strings.HasSuffix(i.Definition, "\n") {
		sb.WriteByte('\n')
	}
	if i.Kernel.Kind == catalog.KindUniversal3x {
		fmt.Fprintf(&sb, "using %s = cutlass::gemm::device::GemmUniversalAdapter<%s>;\n", i.Name, i.Config)
	} else {
		fmt.Fprintf(&sb, "using %s = %s;\n", i.Name, i.Config)
	}
	return sb.String()
}

// Materialize produces the instance of k for op. For production code on an
// adjustable-alignment kind the A, B and epilogue alignments are lowered to what op's views
// can guarantee; profiling instances and fixed kinds keep the catalog alignments.
func Materialize(k catalog.Kernel, op gemm.Operator, forProfiling bool) (Instance, error) {
	key := catalog.Key(k)
	def, err := catalog.Definition(k)
	if err != nil {
		return Instance{}, err
	}
	v := k.Variant()
	lines := strings.Split(def, "\n")
	first, params, err := parseParams(lines, v)
	if err != nil {
		return Instance{}, fmt.Errorf("codegen: %s: %w", key, err)
	}
	if len(params) != v.ParamCount {
		return Instance{}, &ParamCountError{Key: key, Got: len(params), Want: v.ParamCount}
	}
	config, err := configName(lines, v)
	if err != nil {
		return Instance{}, fmt.Errorf("codegen: %s: %w", key, err)
	}

	eff := k.Clone()
	if !forProfiling && v.Adjustable {
		triple := alignment.ResolveOperator(op)
		rewrites := []struct {
			idx   int
			limit int
			dst   *int
		}{
			{v.AlignA, triple.A, &eff.A.Alignment},
			{v.AlignB, triple.B, &eff.B.Alignment},
			{v.AlignEpilogue, triple.Epilogue, &eff.C.Alignment},
		}
		for _, rw := range rewrites {
			cur, err := strconv.Atoi(params[rw.idx])
			if err != nil {
				return Instance{}, fmt.Errorf("codegen: %s: alignment parameter %d is %q: %w", key, rw.idx, params[rw.idx], err)
			}
			next := min(cur, rw.limit)
			line := first + 1 + rw.idx
			lines[line] = strings.Replace(lines[line], params[rw.idx], strconv.Itoa(next), 1)
			params[rw.idx] = strconv.Itoa(next)
			*rw.dst = next
		}
		def = strings.Join(lines, "\n")
	}

	return Instance{
		Name:       "Gemm_" + catalog.Key(eff),
		Config:     config,
		Definition: def,
		Params:     params,
		Kernel:     eff,
	}, nil
}

// parseParams locates the device template parameter list: the line opening the kind's
// device type, then one parameter per line up to the kind's terminator. It returns the
// index of the opening line and the trimmed parameters.
func parseParams(lines []string, v catalog.Variant) (int, []string, error) {
	open := v.DeviceType + "<"
	first := -1
	for i, l := range lines {
		if strings.HasSuffix(strings.TrimSpace(l), open) {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, nil, fmt.Errorf("no %s parameter list", v.DeviceType)
	}
	var params []string
	for _, l := range lines[first+1:] {
		p := strings.TrimSpace(l)
		last := strings.HasSuffix(p, v.Terminator)
		if last {
			p = strings.TrimSuffix(p, v.Terminator)
		}
		params = append(params, strings.Trim(p, ", "))
		if last {
			return first, params, nil
		}
	}
	return 0, nil, fmt.Errorf("unterminated %s parameter list", v.DeviceType)
}

var (
	usingDecl  = regexp.MustCompile(`^\s*using\s(.*?)\s=`)
	structDecl = regexp.MustCompile(`^\s*struct\s(.*?)\s:`)
)

// configName extracts the type the definition declares. The last declaration wins, since
// 3.x definitions declare their collectives before the kernel type.
func configName(lines []string, v catalog.Variant) (string, error) {
	pattern := usingDecl
	if v.Generation == 3 {
		pattern = structDecl
	}
	name := ""
	for _, l := range lines {
		if v.Generation != 3 && !strings.Contains(l, v.DeviceType+"<") {
			continue
		}
		if m := pattern.FindStringSubmatch(l); m != nil {
			name = m[1]
		}
	}
	if name == "" {
		return "", fmt.Errorf("definition declares no %s type", v.DeviceType)
	}
	return name, nil
}
