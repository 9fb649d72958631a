package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gemmforge/internal/autotune"
	"github.com/samcharles93/gemmforge/internal/logger"
	"github.com/samcharles93/gemmforge/internal/profiler"
)

type selectOutput struct {
	Operator string          `json:"operator"`
	Records  int             `json:"records"`
	Winner   autotune.Result `json:"winner"`
}

func selectCmd() *cli.Command {
	var (
		opPath      string
		resultsPath string
		outPath     string
		emit        bool
	)

	return &cli.Command{
		Name:  "select",
		Usage: "Pick the fastest candidate from harness output",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "op",
				Usage:       "operator descriptor (.json or .yaml)",
				Required:    true,
				Destination: &opPath,
			},
			&cli.StringFlag{
				Name:        "results",
				Usage:       "harness output to read (- for stdin)",
				Value:       "-",
				Destination: &resultsPath,
			},
			&cli.BoolFlag{
				Name:        "emit",
				Usage:       "emit the dispatch function for the winner instead of JSON",
				Destination: &emit,
			},
			outputFlag(&outPath),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			op, err := loadOperator(opPath)
			if err != nil {
				return err
			}
			records, err := readRecords(resultsPath)
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
			winner, err := autotune.SelectWinner(sel.Set, records)
			if err != nil {
				return err
			}
			log.Info("winner", "op", op.Name, "key", winner.Key, "time_ms", winner.TimeMs, "workspace", winner.WorkspaceBytes)

			if emit {
				d, err := compiler.Dispatch(op, winner.Key)
				if err != nil {
					return err
				}
				return writeOutput(outPath, []byte(d.Source))
			}
			return writeJSON(outPath, selectOutput{Operator: op.Name, Records: len(records), Winner: winner})
		},
	}
}

func readRecords(path string) ([]profiler.Record, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read results: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return profiler.ParseRecords(r)
}
