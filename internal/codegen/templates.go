package codegen

import "text/template"

const includes = `#include <algorithm>
#include <cmath>
#include <iostream>
#include <memory>
#include <random>
#include <sstream>
#include <string>
#include <vector>

#include "cutlass/cutlass.h"
#include "cutlass/gemm/gemm.h"
#include "cutlass/gemm/device/gemm_universal.h"
#include "cutlass/gemm/device/gemm_sparse.h"
#include "cutlass/gemm/kernel/gemm_universal.hpp"
#include "cutlass/gemm/collective/collective_builder.hpp"
#include "cutlass/gemm/device/gemm_universal_adapter.h"
#include "cutlass/epilogue/collective/collective_builder.hpp"
#include "cutlass/epilogue/thread/linear_combination.h"
#include "cutlass/epilogue/thread/linear_combination_relu.h"
#include "cutlass/epilogue/thread/linear_combination_sigmoid.h"
#include "cutlass/gemm/threadblock/threadblock_swizzle.h"
#include "cutlass/util/device_memory.h"
#include "cutlass/util/packed_stride.hpp"
#include "cutlass/util/reference/device/tensor_fill.h"

#define CUTLASS_CHECK(status)                                                    \
  {                                                                              \
    cutlass::Status error = status;                                              \
    if (error != cutlass::Status::kSuccess) {                                    \
      auto msg = std::string("[") + __FILE__ + "] cutlass error: " +             \
          cutlassGetStatusString(error) + " at: " + std::to_string(__LINE__);    \
      std::cerr << msg << std::endl;                                             \
      throw std::runtime_error(msg);                                             \
    }                                                                            \
  }
`

var execTemplate = template.Must(template.New("exec").Parse(
	`{{.Indent}}using coord_t = cutlass::gemm::GemmCoord::Index;
{{.Indent}}using ElementA = typename {{.Instance}}::ElementA;
{{.Indent}}using ElementB = typename {{.Instance}}::ElementB;
{{.Indent}}using ElementC = typename {{.Instance}}::ElementC;
{{- if .Sparse}}
{{.Indent}}using ElementE = typename {{.Instance}}::ElementE;
{{- end}}
{{.Indent}}using ElementComputeEpilogue = typename {{.Instance}}::EpilogueOutputOp::ElementCompute;
{{.Indent}}typename {{.Instance}}::Arguments arguments{
{{.Args}}{{.Indent}}};
{{- if .Splits}}
{{.Indent}}arguments.scheduler.splits = split_k;
{{- end}}
{{- if .Profiling}}
{{.Indent}}size_t workspace_size = gemm_op.get_workspace_size(arguments);
{{.Indent}}cutlass::device_memory::allocation<uint8_t> local_workspace(workspace_size);
{{.Indent}}workspace = local_workspace.get();
{{.Indent}}GLOBAL_WORKSPACE_SIZE = workspace_size;
{{- else}}
{{.Indent}}{{.Instance}} gemm_op;
{{.Indent}}size_t workspace_size = gemm_op.get_workspace_size(arguments);
{{.Indent}}cutlass::device_memory::allocation<uint8_t> local_workspace;
{{.Indent}}if (workspace_size > 0 && workspace == nullptr) {
{{.Indent}}  local_workspace.reset(workspace_size);
{{.Indent}}  workspace = local_workspace.get();
{{.Indent}}}
{{- end}}
{{.Indent}}auto status = gemm_op.can_implement(arguments);
{{.Indent}}CUTLASS_CHECK(status);
{{.Indent}}status = gemm_op.initialize(arguments, workspace, stream);
{{.Indent}}CUTLASS_CHECK(status);
{{.Indent}}status = gemm_op(stream);
{{.Indent}}CUTLASS_CHECK(status);
{{.Indent}}return;
`))

// signatureTemplate renders the parameter list shared by the dispatch function, its
// declaration and the harness launchers.
var signatureTemplate = template.Must(template.New("signature").Parse(
	`{{- if .Profiling}}
    GemmInstance& gemm_op,
{{- end}}
{{- range .Operands}}
    void* {{.Ptr}},
{{- end}}
    uint8_t* workspace,
{{- if .SplitK}}
    int split_k,
{{- end}}
{{- range .Operands}}{{range .Dims}}
    int64_t* {{.}},
{{- end}}{{end}}
    cudaStream_t stream`))

type functionData struct {
	Name        string
	Profiling   bool
	Operands    []Operand
	SplitK      bool
	Signature   string
	ShapeEval   string
	AddrCalc    string
	Guards      string
	Body        string
	Unsupported bool
}

var functionTemplate = template.Must(template.New("function").Parse(`
{{- if .Profiling}}
template <typename GemmInstance>
{{- end}}
void {{.Name}}({{.Signature}}) {
{{.ShapeEval}}
{{.AddrCalc}}
{{.Guards}}
{{.Body}}
{{- if .Unsupported}}
  throw std::runtime_error(
      "Unsupported workload for this {{.Name}} specialization."
  );
{{- end}}
}
`))

var declTemplate = template.Must(template.New("decl").Parse(`
void {{.Name}}({{.Signature}});
`))

type pathData struct {
	Cond string
	Body string
}

var pathsTemplate = template.Must(template.New("paths").Parse(`
{{- range .}}
  if ({{.Cond}}) {
{{.Body}}  }
{{- end}}
`))

type dispatchData struct {
	Includes  string
	Instances []string
	Function  string
}

var dispatchTemplate = template.Must(template.New("dispatch").Parse(`// Generated by gemmforge. Do not edit.
{{.Includes}}
{{range .Instances}}
{{.}}
{{- end}}
{{.Function}}`))

type callData struct {
	Indent  string
	Name    string
	DimDefs []string
	Ptrs    []string
	SplitK  string
	Dims    []string
}

var callTemplate = template.Must(template.New("call").Parse(`{{.Indent}}{
{{- range .DimDefs}}
{{$.Indent}}  {{.}}
{{- end}}
{{.Indent}}  {{.Name}}(
{{- range .Ptrs}}
{{$.Indent}}      {{.}},
{{- end}}
{{.Indent}}      global_workspace_,
{{- if .SplitK}}
{{.Indent}}      {{.SplitK}},
{{- end}}
{{- range .Dims}}
{{$.Indent}}      {{.}},
{{- end}}
{{.Indent}}      stream
{{.Indent}}  );
{{.Indent}}}
`))
