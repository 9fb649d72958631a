package codegen

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/samcharles93/gemmforge/internal/alignment"
	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/gemm"
	"github.com/samcharles93/gemmforge/internal/profiler"
	"github.com/samcharles93/gemmforge/internal/selection"
)

// Benchmark protocol of the generated harness.
const (
	WarmupLaunches = 5
	TimedLaunches  = 10
	// MinElapsedMs is the timer resolution floor. Anything faster means the kernel did
	// not run.
	MinElapsedMs = profiler.MinElapsedMs
)

// HarnessOptions configures GenerateHarness.
type HarnessOptions struct {
	// Target supplies the device facts used to plan the working set at generation time.
	Target gemm.Target
	// RunID is stamped into the generated source header.
	RunID string
}

// SkippedCandidate is a candidate left out of the harness.
type SkippedCandidate struct {
	Key string
	Err error
}

// Harness is a standalone benchmark program timing every candidate.
type Harness struct {
	Source string
	// Candidates are the keys in benchmark order.
	Candidates []string
	Skipped    []SkippedCandidate
	// Plan is the working-set plan computed at generation time, nil when the target does
	// not declare its memory or the problem is not fully static. The harness recomputes it
	// against the live device either way.
	Plan *profiler.Plan
}

type launcherKey struct {
	kind   catalog.Kind
	splitK bool
}

func (k launcherKey) name() string {
	if k.splitK {
		return "launch_" + k.kind.String() + "_split_k"
	}
	return "launch_" + k.kind.String()
}

type benchmarkData struct {
	Instance string
	Key      string
	Launcher string
	Args     []string
}

type harnessData struct {
	RunID      string
	Includes   string
	ElemType   string
	Instances  []string
	Launchers  []string
	Benchmarks []benchmarkData
	DimDefs    []string
	Tensors    []harnessTensor
	MinCopies  int
	MaxCopies  int
	Warmup     int
	Timed      int
	MinElapsed string
	Count      int
}

type harnessTensor struct {
	Role   string
	Size   string
	Output bool
}

// GenerateHarness renders the benchmark program for the candidates of set. Candidates
// whose instance cannot be materialized are skipped; if none remain the error is a
// *gemm.NoKernelError.
func GenerateHarness(set *selection.Set, op gemm.Operator, opts HarnessOptions) (Harness, error) {
	var h Harness
	prof := profilingOperator(op)
	operands := Operands(prof)

	data := harnessData{
		RunID:      opts.RunID,
		Includes:   includes,
		ElemType:   op.DType.CType(),
		MinCopies:  profiler.MinCopies,
		MaxCopies:  profiler.MaxCopies,
		Warmup:     WarmupLaunches,
		Timed:      TimedLaunches,
		MinElapsed: fmt.Sprint(MinElapsedMs),
	}

	var launchArgs []string
	for i := range operands {
		launchArgs = append(launchArgs, fmt.Sprintf("memory_pool->RequestTensorByIdx(%d)", i))
	}
	launchArgs = append(launchArgs, "global_workspace_", "split_k")
	for _, o := range operands {
		for _, d := range o.Dims() {
			launchArgs = append(launchArgs, "&"+d)
		}
	}
	launchArgs = append(launchArgs, "stream")

	launchers := make(map[launcherKey]bool)
	for _, c := range set.Candidates() {
		inst, err := Materialize(c.Kernel, op, true)
		if err != nil {
			h.Skipped = append(h.Skipped, SkippedCandidate{Key: c.Key, Err: err})
			continue
		}
		lk := launcherKey{kind: c.Kernel.Kind, splitK: c.Kernel.SplitK}
		if !launchers[lk] {
			launchers[lk] = true
			fn, err := launcher(lk, c.Kernel, prof, operands)
			if err != nil {
				return Harness{}, err
			}
			data.Launchers = append(data.Launchers, fn)
		}
		data.Instances = append(data.Instances, inst.Code())
		data.Benchmarks = append(data.Benchmarks, benchmarkData{
			Instance: inst.Name,
			Key:      c.Key,
			Launcher: lk.name(),
			Args:     launchArgs,
		})
		h.Candidates = append(h.Candidates, c.Key)
	}
	if len(h.Candidates) == 0 {
		reason := "no candidates"
		if len(h.Skipped) > 0 {
			reason = fmt.Sprintf("all %d candidates failed to materialize", len(h.Skipped))
		}
		return h, noKernel(op, opts.Target, reason)
	}
	data.Count = len(h.Candidates)

	dims := harnessDims(op)
	for i, o := range operands {
		var factors []string
		for j, d := range o.Dims() {
			data.DimDefs = append(data.DimDefs, fmt.Sprintf("int64_t %s = %s;", d, dims[i][j]))
			factors = append(factors, d)
		}
		size := strings.Join(factors, " * ")
		if s := poolScale(op, o); s > 1 {
			size = fmt.Sprintf("(%s) * %d", size, s)
		}
		data.Tensors = append(data.Tensors, harnessTensor{Role: o.Role, Size: size, Output: o.Output})
	}

	plan, err := staticPlan(op, opts.Target)
	if err != nil {
		return h, err
	}
	h.Plan = plan

	src, err := render(harnessTemplate, data)
	if err != nil {
		return Harness{}, err
	}
	h.Source = src
	return h, nil
}

func launcher(lk launcherKey, k catalog.Kernel, prof gemm.Operator, operands []Operand) (string, error) {
	sig, err := render(signatureTemplate, functionData{Profiling: true, Operands: operands, SplitK: true})
	if err != nil {
		return "", err
	}
	body, err := execBody(k, prof, "GemmInstance", "  ", true, true)
	if err != nil {
		return "", err
	}
	return render(functionTemplate, functionData{
		Name:      lk.name(),
		Profiling: true,
		Signature: sig,
		ShapeEval: shapeEval(prof, "  "),
		AddrCalc:  addrCalcs(prof),
		Guards:    renderGuards(operands, "  "),
		Body:      body,
	})
}

// profilingOperator is op over contiguous rank-2 pool tensors sized from the harness
// command line.
func profilingOperator(op gemm.Operator) gemm.Operator {
	sym := func(names ...string) gemm.TensorView {
		v := gemm.TensorView{}
		for _, n := range names {
			v.Shape = append(v.Shape, gemm.Symbolic(n))
		}
		return v
	}
	p := op
	p.A, p.B, p.Output = sym("M", "K"), sym("K", "N"), sym("M", "N")
	p.A.Name, p.B.Name, p.Output.Name = op.A.Name, op.B.Name, op.Output.Name
	if op.Layout.A == gemm.ColumnMajor {
		p.A.Shape[0], p.A.Shape[1] = p.A.Shape[1], p.A.Shape[0]
	}
	if op.Layout.B == gemm.ColumnMajor {
		p.B.Shape[0], p.B.Shape[1] = p.B.Shape[1], p.B.Shape[0]
	}
	if op.Metadata != nil {
		m := sym("M", "K_meta")
		m.Name = op.Metadata.Name
		p.Metadata = &m
	}
	if op.Bias != nil {
		b := sym("N")
		b.Name = op.Bias.Name
		p.Bias = &b
	}
	return p
}

// harnessDims gives the C++ expression of every dimension of the profiling operands in
// terms of M, N and K.
func harnessDims(op gemm.Operator) [][]string {
	ka := "K"
	if op.Sparse() {
		ka = "K / 2"
	}
	a := []string{"M", ka}
	if op.Layout.A == gemm.ColumnMajor {
		a = []string{ka, "M"}
	}
	b := []string{"K", "N"}
	if op.Layout.B == gemm.ColumnMajor {
		b = []string{"N", "K"}
	}
	out := [][]string{a, b}
	if op.Metadata != nil {
		// 2:4 metadata packs 4 bits per 4 elements: K bits per row, in operand units.
		out = append(out, []string{"M", fmt.Sprintf("std::max<int64_t>(1, K / %d)", 8*op.DType.Size())})
	}
	if op.Bias != nil {
		out = append(out, []string{"N"})
	}
	return append(out, []string{"M", "N"})
}

// poolScale converts an operand's element count to pool elements, which have the size of
// the operator's input type.
func poolScale(op gemm.Operator, o Operand) int64 {
	if !o.Output && o.Prefix != "bias" {
		return 1
	}
	in, out := op.DType.Size(), op.OutDType().Size()
	if in == 0 || out <= in {
		return 1
	}
	return int64((out + in - 1) / in)
}

// staticPlan runs the pool planner at generation time when everything it needs is known.
func staticPlan(op gemm.Operator, target gemm.Target) (*profiler.Plan, error) {
	if target.L2CacheBytes <= 0 || target.DeviceMemoryBytes <= 0 {
		return nil, nil
	}
	req := profiler.PoolRequest{
		ElemBytes:    int64(op.DType.Size()),
		L2CacheBytes: target.L2CacheBytes,
		FreeBytes:    target.DeviceMemoryBytes,
	}
	for _, o := range Operands(op) {
		n, ok := o.View.StaticElements()
		if !ok {
			return nil, nil
		}
		req.Tensors = append(req.Tensors, profiler.TensorSize{Name: o.View.Name, Elems: n * poolScale(op, o), Output: o.Output})
	}
	plan, err := profiler.PlanPool(req)
	if err != nil {
		return nil, fmt.Errorf("codegen: %s: %w", op.Name, err)
	}
	return &plan, nil
}

func noKernel(op gemm.Operator, target gemm.Target, reason string) error {
	arch := target.Arch
	if arch == 0 {
		arch = gemm.DefaultArch
	}
	return &gemm.NoKernelError{
		Operator:   op.Name,
		DType:      op.DType,
		Layout:     op.Layout,
		Epilogue:   op.Epilogue,
		Problem:    op.Problem(),
		Alignments: alignment.ResolveOperator(op).Array(),
		Arch:       arch,
		Reason:     reason,
	}
}

var harnessTemplate = template.Must(template.New("harness").Parse(`// Generated by gemmforge{{if .RunID}} (run {{.RunID}}){{end}}. Do not edit.
// Usage: profiler M N K [split_k]
{{.Includes}}
size_t GLOBAL_WORKSPACE_SIZE = 0;
{{range .Instances}}
{{.}}
{{- end}}
{{range .Launchers}}
{{.}}
{{- end}}

template <typename DType>
struct ProfilerMemoryPool {
  ProfilerMemoryPool() : shared_input_tensor(false) {
    std::random_device rd;
    gen = std::mt19937(rd());
    uniform_dist = std::uniform_int_distribution<int64_t>(1, 48964896);
  }

  // Number of rotated copies so that the working set defeats the L2 cache. Falls back to
  // one blob shared by all inputs when not even one copy fits.
  int64_t ComputeMemPoolSize(int64_t one_copy_sz, int64_t ptr_max_sz, int64_t input_max_sz,
                             int64_t output_sz, size_t l2_cache_bytes) {
    ptr_max_sz = std::max<int64_t>(1, ptr_max_sz);
    int64_t copies = (int64_t)std::ceil((double)l2_cache_bytes / (double)(sizeof(DType) * ptr_max_sz));
    copies = std::max<int64_t>({{.MinCopies}}, std::min<int64_t>({{.MaxCopies}}, copies));
    size_t free_global_mem = 0;
    size_t total_global_mem = 0;
    cudaError_t cuda_error = cudaMemGetInfo(&free_global_mem, &total_global_mem);
    if (cuda_error != cudaSuccess) {
      throw std::runtime_error(std::string("cudaMemGetInfo failed: ") + cudaGetErrorName(cuda_error));
    }
    size_t single_copy_nbytes = one_copy_sz * sizeof(DType);
    while (copies > 0 && copies * single_copy_nbytes > free_global_mem) {
      copies--;
    }
    if (copies > 0) {
      return copies;
    }
    size_t required = (input_max_sz + output_sz) * sizeof(DType);
    if (required > free_global_mem) {
      throw std::runtime_error("not enough GPU memory: requested " + std::to_string(required) +
                               ", available " + std::to_string(free_global_mem) +
                               ", largest operand " + std::to_string(ptr_max_sz * sizeof(DType)));
    }
    shared_input_tensor = true;
    AllocateGaussianTensor(input_max_sz);
    return 1;
  }

  DType* AllocateGaussianTensor(int64_t size) {
    blobs.emplace_back(size * sizeof(DType));
    DType* ptr = reinterpret_cast<DType*>(blobs.back().get());
    cutlass::reference::device::BlockFillRandomGaussian(ptr, size, uniform_dist(gen), 0.0, 1.0);
    return ptr;
  }

  int AllocateTensor(int64_t size, int64_t copy, bool is_output = false) {
    DType* ptr;
    if (!is_output && shared_input_tensor) {
      ptr = reinterpret_cast<DType*>(blobs.front().get());
      copy = 1;
    } else {
      ptr = AllocateGaussianTensor(size * copy);
    }
    offsets.push_back(0);
    strides.push_back(size);
    copies.push_back(copy);
    ptrs.push_back(reinterpret_cast<void*>(ptr));
    return ptrs.size() - 1;
  }

  // Round-robin over the copies of tensor idx.
  DType* RequestTensorByIdx(int idx) {
    int64_t copy = copies.at(idx);
    int64_t offset = offsets.at(idx);
    int64_t stride = strides.at(idx);
    DType* ptr = reinterpret_cast<DType*>(ptrs.at(idx)) + offset;
    offset += stride;
    if (offset == copy * stride) {
      offset = 0;
    }
    offsets[idx] = offset;
    return ptr;
  }

  std::vector<int64_t> offsets;
  std::vector<int64_t> strides;
  std::vector<int64_t> copies;
  std::vector<void*> ptrs;
  std::vector<cutlass::DeviceAllocation<uint8_t>> blobs;
  std::mt19937 gen;
  std::uniform_int_distribution<int64_t> uniform_dist;
  bool shared_input_tensor;
};

template <typename Launch>
void benchmark(const char* gemm_op_name, Launch launch, cudaStream_t stream) {
  for (int i = 0; i < {{.Warmup}}; ++i) {
    launch();
  }
  cudaEvent_t events[2];
  for (auto& event : events) {
    cudaEventCreate(&event);
  }
  cudaEventRecord(events[0], stream);
  for (int i = 0; i < {{.Timed}}; ++i) {
    launch();
  }
  cudaEventRecord(events[1], stream);
  cudaEventSynchronize(events[1]);
  float runtime_ms = 0;
  cudaEventElapsedTime(&runtime_ms, events[0], events[1]);
  for (auto event : events) {
    (void)cudaEventDestroy(event);
  }
  if (runtime_ms < {{.MinElapsed}}) {
    throw std::runtime_error("elapsed time below timer resolution, kernel did not run");
  }
  std::cout << "OP:" << gemm_op_name << ",";
  std::cout << "TIME:" << runtime_ms << ",";
  std::cout << "WS:" << GLOBAL_WORKSPACE_SIZE << std::endl;
}

int main(int argc, char** argv) {
  if (argc < 4) {
    std::cerr << "usage: " << argv[0] << " M N K [split_k]" << std::endl;
    return 2;
  }
  int64_t M = std::stoll(argv[1]);
  int64_t N = std::stoll(argv[2]);
  int64_t K = std::stoll(argv[3]);
  int split_k = argc > 4 ? std::stoi(argv[4]) : 1;

  int device_idx;
  cudaDeviceProp device_properties;
  cudaError_t result = cudaGetDevice(&device_idx);
  if (result != cudaSuccess) {
    throw std::runtime_error(std::string("cudaGetDevice failed: ") + cudaGetErrorString(result));
  }
  result = cudaGetDeviceProperties(&device_properties, device_idx);
  if (result != cudaSuccess) {
    throw std::runtime_error(std::string("cudaGetDeviceProperties failed: ") + cudaGetErrorString(result));
  }

{{- range .DimDefs}}
  {{.}}
{{- end}}
{{- range $i, $t := .Tensors}}
  int64_t tensor{{$i}}_sz = {{$t.Size}};  // {{$t.Role}}
{{- end}}

  int64_t one_copy_sz = 0;
  int64_t ptr_max_sz = 0;
  int64_t input_max_sz = 0;
  int64_t output_sz = 0;
{{- range $i, $t := .Tensors}}
  one_copy_sz += tensor{{$i}}_sz;
  ptr_max_sz = std::max(ptr_max_sz, tensor{{$i}}_sz);
{{- if $t.Output}}
  output_sz += tensor{{$i}}_sz;
{{- else}}
  input_max_sz = std::max(input_max_sz, tensor{{$i}}_sz);
{{- end}}
{{- end}}

  auto memory_pool = std::make_unique<ProfilerMemoryPool<{{.ElemType}}>>();
  int64_t mem_pool_sz = memory_pool->ComputeMemPoolSize(
      one_copy_sz, ptr_max_sz, input_max_sz, output_sz, device_properties.l2CacheSize);
{{- range $i, $t := .Tensors}}
  memory_pool->AllocateTensor(tensor{{$i}}_sz, mem_pool_sz{{if $t.Output}}, /*is_output=*/true{{end}});
{{- end}}

  uint8_t* global_workspace_ = nullptr;
  cudaStream_t stream = nullptr;

  std::cerr << "profiling {{.Count}} candidates" << std::endl;
{{- range .Benchmarks}}
  {
    {{.Instance}} gemm_op;
    const char* gemm_op_name = "{{.Key}}";
    try {
      benchmark(gemm_op_name, [&]() {
        {{.Launcher}}(
            gemm_op,
{{- range .Args}}
            {{.}}{{if ne . "stream"}},{{end}}
{{- end}}
        );
      }, stream);
    } catch (const std::exception& e) {
      std::cerr << gemm_op_name << ": " << e.what() << std::endl;
    }
  }
{{- end}}
  return 0;
}
`))
