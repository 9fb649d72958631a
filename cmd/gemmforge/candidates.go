package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gemmforge/internal/alignment"
)

type candidateRow struct {
	Key       string           `json:"key"`
	Kind      string           `json:"kind"`
	Alignment alignment.Triple `json:"alignment"`
}

type candidatesOutput struct {
	Operator    string           `json:"operator"`
	Alignment   alignment.Triple `json:"alignment"`
	TMAEpilogue bool             `json:"tma_epilogue"`
	Candidates  []candidateRow   `json:"candidates"`
}

func candidatesCmd() *cli.Command {
	var (
		opPath  string
		asJSON  bool
		outPath string
	)

	return &cli.Command{
		Name:  "candidates",
		Usage: "List the catalog kernels that can run an operator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "op",
				Usage:       "operator descriptor (.json or .yaml, - for stdin)",
				Required:    true,
				Destination: &opPath,
			},
			&cli.BoolFlag{Name: "json", Usage: "print JSON", Destination: &asJSON},
			outputFlag(&outPath),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			op, err := loadOperator(opPath)
			if err != nil {
				return err
			}
			compiler, err := newCompiler(ctx)
			if err != nil {
				return err
			}
			sel, err := compiler.Candidates(op)
			if err != nil {
				return err
			}

			out := candidatesOutput{
				Operator:    op.Name,
				Alignment:   sel.Alignment,
				TMAEpilogue: sel.Set.TMAEpilogue,
			}
			for _, c := range sel.Set.Candidates() {
				out.Candidates = append(out.Candidates, candidateRow{Key: c.Key, Kind: c.Kernel.Kind.String(), Alignment: c.Alignment})
			}
			if asJSON || outPath != "" {
				return writeJSON(outPath, out)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "KEY\tKIND\tALIGN\n")
			for _, c := range out.Candidates {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Key, c.Kind, c.Alignment)
			}
			return tw.Flush()
		},
	}
}
