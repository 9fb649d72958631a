package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gemmforge/internal/autotune"
	"github.com/samcharles93/gemmforge/internal/logger"
	"github.com/samcharles93/gemmforge/internal/profiler"
)

func tuneCmd() *cli.Command {
	var (
		opPath  string
		harness string
		ms      []int64
		timeout time.Duration
		outPath string
	)

	return &cli.Command{
		Name:  "tune",
		Usage: "Run a compiled harness at several M values and emit an M-dispatched function",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "op",
				Usage:       "operator descriptor (.json or .yaml)",
				Required:    true,
				Destination: &opPath,
			},
			&cli.StringFlag{
				Name:        "harness",
				Usage:       "compiled harness binary generated by the profiler command",
				Required:    true,
				Destination: &harness,
			},
			&cli.Int64SliceFlag{
				Name:        "m",
				Usage:       "M values to benchmark (repeatable)",
				Value:       []int64{1, 64, 256, 1024, 4096},
				Destination: &ms,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "limit for each harness run",
				Value:       5 * time.Minute,
				Destination: &timeout,
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
			for _, m := range ms {
				if m <= 0 {
					return fmt.Errorf("--m values must be positive, got %d", m)
				}
			}
			ms = slices.Clone(ms)
			slices.Sort(ms)
			ms = slices.Compact(ms)

			runner := &profiler.Runner{Binary: harness, Log: log}
			run := func(ctx context.Context, p profiler.Problem) ([]profiler.Record, error) {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return runner.Run(ctx, p)
			}
			tuner := autotune.New()
			d, err := compiler.Tune(ctx, op, tuner, run, ms)
			if err != nil {
				return err
			}
			log.Info("tuned", "op", op.Name, "shapes", tuner.Len(), "instances", len(d.Instances))
			return writeOutput(outPath, []byte(d.Source))
		},
	}
}
