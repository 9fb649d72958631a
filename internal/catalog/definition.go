package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/samcharles93/gemmforge/internal/gemm"
)

// ConfigName is the C++ type declared by the kernel's definition.
func ConfigName(k Kernel) string {
	return "Operation_" + Key(k)
}

var definition2x = template.Must(template.New("definition2x").Parse(`
// Gemm operator {{.Key}}
using {{.Config}} = {{.DeviceType}}<
{{- range .Params}}
    {{.}}
{{- end}}
`))

var definition3x = template.Must(template.New("definition3x").Parse(`
using {{.Key}}_epilogue =
  typename cutlass::epilogue::collective::CollectiveBuilder<
    {{.Arch}}, {{.OpClass}},
    {{.TileShape}},
    {{.ClusterShape}},
    cutlass::epilogue::collective::EpilogueTileAuto,
    {{.Accumulator}}, {{.Accumulator}},
    {{.ElementC}}, {{.LayoutC}}, {{.AlignC}},
    {{.ElementC}}, {{.LayoutC}}, {{.AlignC}},
    {{.EpilogueSchedule}}
  >::CollectiveOp;

using {{.Key}}_mainloop =
  typename cutlass::gemm::collective::CollectiveBuilder<
    {{.Arch}}, {{.OpClass}},
    {{.ElementA}}, {{.LayoutA}}, {{.AlignA}},
    {{.ElementB}}, {{.LayoutB}}, {{.AlignB}},
    {{.Accumulator}},
    {{.TileShape}},
    {{.ClusterShape}},
    cutlass::gemm::collective::StageCountAutoCarveout<static_cast<int>(sizeof(typename {{.Key}}_epilogue::SharedStorage))>,
    {{.KernelSchedule}}
  >::CollectiveOp;

// Gemm operator {{.Key}}
struct {{.Config}} :
  public {{.DeviceType}}<
{{- range .Params}}
    {{.}}
{{- end}}
{ };
`))

// Definition returns the instantiation text of k: its Definition field when the catalog
// supplied one, otherwise the text rendered from its parameters. The template parameter
// list holds exactly one parameter per line.
func Definition(k Kernel) (string, error) {
	if k.Definition != "" {
		return k.Definition, nil
	}
	v := k.Variant()
	var sb strings.Builder
	switch v.Generation {
	case 2:
		data := struct {
			Key, Config, DeviceType string
			Params                  []string
		}{Key(k), ConfigName(k), v.DeviceType, params2x(k)}
		if err := definition2x.Execute(&sb, data); err != nil {
			return "", fmt.Errorf("catalog: render %s: %w", data.Key, err)
		}
	case 3:
		key := Key(k)
		c := k.Cluster
		if c == (Shape{}) {
			c = Shape{1, 1, 1}
		}
		data := map[string]any{
			"Key":              key,
			"Config":           ConfigName(k),
			"DeviceType":       v.DeviceType,
			"Arch":             fmt.Sprintf("cutlass::arch::Sm%d", k.Arch),
			"OpClass":          k.OpClass.CType(),
			"TileShape":        cuteShape(k.Threadblock),
			"ClusterShape":     cuteShape(c),
			"Accumulator":      k.Accumulator.CType(),
			"ElementA":         k.A.Element.CType(),
			"LayoutA":          k.A.Layout.CType(),
			"AlignA":           k.A.Alignment,
			"ElementB":         k.B.Element.CType(),
			"LayoutB":          k.B.Layout.CType(),
			"AlignB":           k.B.Alignment,
			"ElementC":         k.C.Element.CType(),
			"LayoutC":          k.C.Layout.CType(),
			"AlignC":           k.C.Alignment,
			"EpilogueSchedule": k.EpilogueSchedule.CType(),
			"KernelSchedule":   k.KernelSchedule.CType(),
			"Params": []string{
				"cute::Shape<int,int,int,int>,",
				key + "_mainloop,",
				key + "_epilogue,",
				"cutlass::gemm::PersistentScheduler>",
			},
		}
		if err := definition3x.Execute(&sb, data); err != nil {
			return "", fmt.Errorf("catalog: render %s: %w", key, err)
		}
	default:
		return "", fmt.Errorf("catalog: no definition emitter for kind %s", k.Kind)
	}
	return sb.String(), nil
}

// params2x lays out the 2.x device template arguments, one per line. The alignment
// indices in the kind's Variant point into this list.
func params2x(k Kernel) []string {
	swizzle := k.Swizzle
	if swizzle == 0 {
		swizzle = 8
	}
	acc := k.Accumulator.CType()
	p := []string{
		k.A.Element.CType() + ",",
		k.A.Layout.CType() + ",",
		k.B.Element.CType() + ",",
		k.B.Layout.CType() + ",",
		k.C.Element.CType() + ",",
		k.C.Layout.CType() + ",",
		acc + ",",
		k.OpClass.CType() + ",",
		fmt.Sprintf("cutlass::arch::Sm%d,", k.Arch),
		gemmShape(k.Threadblock) + ",",
		gemmShape(k.Warp) + ",",
		gemmShape(k.Instruction) + ",",
		// Epilogue functor, parameters 12 to 17. 14 is the output alignment.
		"cutlass::epilogue::thread::" + cutlassName(k.Functor()) + "<",
		k.C.Element.CType() + ",",
		strconv.Itoa(k.C.Alignment) + ",",
		acc + ",",
		acc,
		">,",
		fmt.Sprintf("cutlass::gemm::threadblock::GemmIdentityThreadblockSwizzle<%d>,", swizzle),
		strconv.Itoa(k.Stages) + ",",
		strconv.Itoa(k.A.Alignment) + ",",
		strconv.Itoa(k.B.Alignment) + ",",
	}
	if k.Kind == KindSparse {
		p = append(p, strconv.FormatBool(k.SplitK)+",")
	}
	return append(p, mathOperator(k)+">;")
}

// mathOperator picks the 3xTF32 emulation for float32 math on tensor cores.
func mathOperator(k Kernel) string {
	if k.OpClass == OpClassTensorOp && k.A.Element == gemm.F32 && k.MathElement == gemm.F32 {
		return "cutlass::arch::OpMultiplyAddFastF32"
	}
	return "cutlass::arch::OpMultiplyAdd"
}

func gemmShape(s Shape) string {
	return fmt.Sprintf("cutlass::gemm::GemmShape<%d, %d, %d>", s.M(), s.N(), s.K())
}

func cuteShape(s Shape) string {
	return fmt.Sprintf("cute::Shape<cute::_%d, cute::_%d, cute::_%d>", s.M(), s.N(), s.K())
}
