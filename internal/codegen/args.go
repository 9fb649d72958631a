package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/gemmforge/internal/catalog"
	"github.com/samcharles93/gemmforge/internal/gemm"
)

// shapeEval computes M, N and K from the dimension pointers. A row-major A folds all of
// its leading dimensions into M; K always comes from B.
func shapeEval(op gemm.Operator, indent string) string {
	var m []string
	switch op.Layout.A {
	case gemm.ColumnMajor:
		m = []string{"(*a_dim1)"}
	default:
		for i := 0; i < op.A.Rank()-1; i++ {
			m = append(m, fmt.Sprintf("(*a_dim%d)", i))
		}
	}
	n, k := "(*b_dim1)", "(*b_dim0)"
	if op.Layout.B == gemm.ColumnMajor {
		n, k = "(*b_dim0)", "(*b_dim1)"
	}
	return fmt.Sprintf("%sint64_t M = %s;\n%sint64_t N = %s;\n%sint64_t K = %s;\n",
		indent, strings.Join(m, " * "), indent, n, indent, k)
}

// addrCalc emits leading dimension, batch stride and element offset for one operand.
// Strided views take them from the view; contiguous views derive them from the problem.
func addrCalc(name string, v gemm.TensorView, ld, batch string) string {
	offset := "0"
	if s := v.Strided; s != nil {
		ld = strconv.FormatInt(s.RowStride, 10)
		if s.BatchStride != 0 {
			batch = strconv.FormatInt(s.BatchStride, 10)
		}
		offset = strconv.FormatInt(s.Offset, 10)
	}
	return fmt.Sprintf("  int64_t %[1]s_batch_stride = %[2]s;\n  int64_t %[1]s_stride = %[3]s;\n  int64_t %[1]s_offset = %[4]s;\n",
		name, batch, ld, offset)
}

// addrCalcs returns the strides of A, B and the output.
func addrCalcs(op gemm.Operator) string {
	lda := "K"
	if op.Layout.A == gemm.ColumnMajor {
		lda = "M"
	}
	if op.Sparse() && op.Layout.A == gemm.RowMajor {
		// A is compressed 2:4 along K.
		lda = "K / 2"
	}
	ldb := "N"
	if op.Layout.B == gemm.ColumnMajor {
		ldb = "K"
	}
	ldc := "N"
	if op.Layout.C == gemm.ColumnMajor {
		ldc = "M"
	}
	return addrCalc("input_a", op.A, lda, "M * K") +
		addrCalc("input_b", op.B, ldb, "N * K") +
		addrCalc("output", op.Output, ldc, "M * N")
}

// epilogueSource is the C operand of the epilogue: the broadcast bias, or the output itself
// scaled by zero.
func epilogueSource(op gemm.Operator) (ptr, ld, beta string) {
	if op.Bias != nil {
		return "bias_ptr", "0", "1"
	}
	return "c_ptr", "output_stride", "0"
}

// problemArgs renders the Arguments initializer of k's kind for op.
func problemArgs(k catalog.Kernel, op gemm.Operator, inst, indent string, splitK bool) string {
	src, ldc, beta := epilogueSource(op)
	split := "1"
	if splitK && k.SplitK {
		split = "split_k"
	}
	cOffset := ""
	if op.Bias == nil {
		cOffset = " + output_offset"
	}
	var lines []string
	switch k.Kind {
	case catalog.KindSparse:
		lines = []string{
			"{static_cast<coord_t>(M), static_cast<coord_t>(N), static_cast<coord_t>(K)},",
			"{static_cast<ElementA*>(a_ptr) + input_a_offset, input_a_stride},",
			"{static_cast<ElementB*>(b_ptr) + input_b_offset, input_b_stride},",
			fmt.Sprintf("{static_cast<ElementC*>(%s)%s, %s},", src, cOffset, ldc),
			"{static_cast<ElementC*>(c_ptr) + output_offset, output_stride},",
			fmt.Sprintf("{static_cast<ElementE*>(m_ptr), %[1]s::LayoutE::packed(cutlass::make_Coord(static_cast<coord_t>(M), static_cast<coord_t>(K / %[1]s::kSparse / %[1]s::kElementsPerElementE)))},", inst),
			fmt.Sprintf("{ElementComputeEpilogue(1), ElementComputeEpilogue(%s)},", beta),
			split,
		}
	case catalog.KindUniversal3x:
		sa, sb, sc := cuteStride(op.Layout.A == gemm.RowMajor), cuteStride(op.Layout.B == gemm.ColumnMajor), cuteStride(op.Layout.C == gemm.RowMajor)
		lines = []string{
			"cutlass::gemm::GemmUniversalMode::kGemm,",
			"{static_cast<int>(M), static_cast<int>(N), static_cast<int>(K), 1},",
			"{",
			"  static_cast<ElementA*>(a_ptr) + input_a_offset,",
			"  " + fmt.Sprintf(sa, "input_a_stride", "input_a_batch_stride") + ",",
			"  static_cast<ElementB*>(b_ptr) + input_b_offset,",
			"  " + fmt.Sprintf(sb, "input_b_stride", "input_b_batch_stride") + ",",
			"},",
			"{",
			fmt.Sprintf("  {ElementComputeEpilogue(1), ElementComputeEpilogue(%s)},", beta),
			fmt.Sprintf("  static_cast<ElementC*>(%s)%s,", src, cOffset),
			"  " + fmt.Sprintf(sc, ldc, "output_batch_stride") + ",",
			"  static_cast<ElementC*>(c_ptr) + output_offset,",
			"  " + fmt.Sprintf(sc, "output_stride", "output_batch_stride") + ",",
			"},",
		}
	default:
		cBatch := "output_batch_stride"
		if op.Bias != nil {
			cBatch = "0"
		}
		lines = []string{
			"cutlass::gemm::GemmUniversalMode::kGemm,",
			"{static_cast<coord_t>(M), static_cast<coord_t>(N), static_cast<coord_t>(K)},",
			split + ",",
			fmt.Sprintf("{ElementComputeEpilogue(1), ElementComputeEpilogue(%s)},", beta),
			"static_cast<ElementA*>(a_ptr) + input_a_offset,",
			"static_cast<ElementB*>(b_ptr) + input_b_offset,",
			fmt.Sprintf("static_cast<ElementC*>(%s)%s,", src, cOffset),
			"static_cast<ElementC*>(c_ptr) + output_offset,",
			"input_a_batch_stride,",
			"input_b_batch_stride,",
			cBatch + ",",
			"output_batch_stride,",
			"input_a_stride,",
			"input_b_stride,",
			ldc + ",",
			"output_stride",
		}
	}
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(indent)
		sb.WriteString("  ")
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// cuteStride returns the stride tuple pattern for a matrix whose second mode is contiguous
// when contiguousInner is set.
func cuteStride(contiguousInner bool) string {
	if contiguousInner {
		return "{%s, cute::Int<1>{}, %s}"
	}
	return "{cute::Int<1>{}, %s, %s}"
}

type execData struct {
	Indent    string
	Instance  string
	Args      string
	Sparse    bool
	Profiling bool
	Splits    bool
}

// execBody renders the argument setup and launch of one kernel instance.
func execBody(k catalog.Kernel, op gemm.Operator, inst, indent string, profiling, splitK bool) (string, error) {
	data := execData{
		Indent:    indent,
		Instance:  inst,
		Args:      problemArgs(k, op, inst, indent, splitK),
		Sparse:    k.Kind == catalog.KindSparse,
		Profiling: profiling,
		Splits:    splitK && k.SplitK && k.Kind == catalog.KindUniversal3x,
	}
	var sb strings.Builder
	if err := execTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("codegen: render launch of %s: %w", inst, err)
	}
	return sb.String(), nil
}
