package codegen

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/ordered"
)

// Dispatch is the production source for one operator.
type Dispatch struct {
	// Name is the generated function, the operator's name.
	Name string
	// Source is a complete translation unit defining the function.
	Source string
	// Decl is the forward declaration of the function.
	Decl string
	// Call is a call site passing the operator's tensors and dimensions.
	Call string
	// SplitK reports whether the signature carries split_k.
	SplitK    bool
	Instances []Instance
}

// EmitDispatch generates the function that runs k for op.
func EmitDispatch(k catalog.Kernel, op gemm.Operator) (Dispatch, error) {
	paths := ordered.New[string, catalog.Kernel]()
	paths.Set("true", k)
	return EmitDispatchPaths(op, paths)
}

// EmitDispatchPaths generates a function that tests each exec condition in insertion order
// and runs the first matching kernel. Kernels shared by several conditions are instantiated
// once.
func EmitDispatchPaths(op gemm.Operator, paths *ordered.Map[string, catalog.Kernel]) (Dispatch, error) {
	if paths.Len() == 0 {
		return Dispatch{}, fmt.Errorf("codegen: %s: no exec paths", op.Name)
	}
	splitK := false
	for _, k := range paths.All() {
		splitK = splitK || k.SplitK
	}

	var (
		instances []Instance
		seen      = make(map[string]bool)
		bodies    []pathData
	)
	for cond, k := range paths.All() {
		inst, err := Materialize(k, op, false)
		if err != nil {
			return Dispatch{}, err
		}
		if !seen[inst.Name] {
			seen[inst.Name] = true
			instances = append(instances, inst)
		}
		body, err := execBody(inst.Kernel, op, inst.Name, "    ", false, splitK)
		if err != nil {
			return Dispatch{}, err
		}
		bodies = append(bodies, pathData{Cond: cond, Body: body})
	}

	operands := Operands(op)
	sig, err := render(signatureTemplate, functionData{Operands: operands, SplitK: splitK})
	if err != nil {
		return Dispatch{}, err
	}
	execPaths, err := render(pathsTemplate, bodies)
	if err != nil {
		return Dispatch{}, err
	}
	fn, err := render(functionTemplate, functionData{
		Name:        op.Name,
		Signature:   sig,
		ShapeEval:   shapeEval(op, "  "),
		AddrCalc:    addrCalcs(op),
		Guards:      renderGuards(operands, "  "),
		Body:        execPaths,
		Unsupported: true,
	})
	if err != nil {
		return Dispatch{}, err
	}

	codes := make([]string, len(instances))
	for i, inst := range instances {
		codes[i] = inst.Code()
	}
	src, err := render(dispatchTemplate, dispatchData{Includes: includes, Instances: codes, Function: fn})
	if err != nil {
		return Dispatch{}, err
	}
	decl, err := render(declTemplate, functionData{Name: op.Name, Signature: sig})
	if err != nil {
		return Dispatch{}, err
	}
	call, err := EmitCall(op, splitK)
	if err != nil {
		return Dispatch{}, err
	}
	return Dispatch{
		Name:      op.Name,
		Source:    src,
		Decl:      decl,
		Call:      call,
		SplitK:    splitK,
		Instances: instances,
	}, nil
}

// EmitCall renders the call site of op's dispatch function. Static dimensions are defined
// locally so that strided views pass their logical extents.
func EmitCall(op gemm.Operator, splitK bool) (string, error) {
	data := callData{Indent: "  ", Name: op.Name}
	defined := make(map[string]int64)
	for _, o := range Operands(op) {
		data.Ptrs = append(data.Ptrs, o.View.Name)
		for i, d := range o.View.Shape {
			name := d.Name
			if name == "" {
				name = fmt.Sprintf("%s_dim%d", o.Prefix, i)
			}
			data.Dims = append(data.Dims, "&"+name)
			if !d.IsStatic() {
				continue
			}
			if prev, ok := defined[name]; ok {
				if prev != d.Value {
					return "", fmt.Errorf("codegen: %s: dimension %s is both %d and %d", op.Name, name, prev, d.Value)
				}
				continue
			}
			defined[name] = d.Value
			data.DimDefs = append(data.DimDefs, fmt.Sprintf("int64_t %s = %d;", name, d.Value))
		}
	}
	if splitK {
		data.SplitK = strconv.Itoa(op.SplitKFactor())
	}
	return render(callTemplate, data)
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("codegen: render %s: %w", t.Name(), err)
	}
	return sb.String(), nil
}
