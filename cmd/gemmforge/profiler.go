package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gemmforge/internal/logger"
)

func profilerCmd() *cli.Command {
	var (
		opPath  string
		outPath string
		runID   string
	)

	return &cli.Command{
		Name:  "profiler",
		Usage: "Generate the benchmark harness for an operator's candidates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "op",
				Usage:       "operator descriptor (.json or .yaml, - for stdin)",
				Required:    true,
				Destination: &opPath,
			},
			&cli.StringFlag{
				Name:        "run-id",
				Usage:       "id stamped into the generated source (default: random)",
				Destination: &runID,
			},
			outputFlag(&outPath),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			op, err := loadOperator(opPath)
			if err != nil {
				return err
			}
			compiler, err := newCompiler(ctx)
			if err != nil {
				return err
			}
			if runID == "" {
				runID = newRunID()
			}
			h, _, err := compiler.Profiler(op, runID)
			if err != nil {
				return err
			}
			if err := writeOutput(outPath, []byte(h.Source)); err != nil {
				return err
			}
			if outPath != "" {
				log.Info("harness written", "path", outPath, "run", runID, "candidates", len(h.Candidates))
			}
			return nil
		},
	}
}
