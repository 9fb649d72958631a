package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gemmforge/internal/logger"
)

// loadedConfig is the config file read by the root Before hook.
var loadedConfig Config

func main() {
	app := &cli.Command{
		Name:   "gemmforge",
		Usage:  "GEMM kernel selection, profiling harness and dispatch generator",
		Flags:  globalFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			candidatesCmd(),
			profilerCmd(),
			dispatchCmd(),
			selectCmd(),
			tuneCmd(),
			catalogCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup applies the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	loadedConfig = cfg
	applyGlobalConfig(cmd, cfg)

	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, err
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log := logger.Open(os.Stderr, format, level)
	return logger.WithContext(ctx, log), nil
}
