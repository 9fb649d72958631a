package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gemmforge/internal/gemm"
)

var (
	configFile   string
	catalogPath  string
	arch         int64
	noTF32       bool
	useFP16Acc   bool
	allowSIMT    bool
	l2CacheBytes int64
	deviceMemory int64
	logLevel     string
	logFormat    string
	debug        bool
)

func globalFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default: ~/.config/gemmforge/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "catalog",
			Usage:       "kernel catalog file (.json or .yaml); the built-in catalog when empty",
			Sources:     cli.EnvVars("GEMMFORGE_CATALOG"),
			Destination: &catalogPath,
		},
	}
	flags = append(flags, targetFlags()...)
	return append(flags, loggingFlags()...)
}

func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "arch",
			Usage:       "target compute capability (80, 86, 89, 90)",
			Value:       gemm.DefaultArch,
			Sources:     cli.EnvVars("GEMMFORGE_ARCH"),
			Destination: &arch,
		},
		&cli.BoolFlag{
			Name:        "no-tf32",
			Usage:       "forbid tf32 math for float32 operators",
			Destination: &noTF32,
		},
		&cli.BoolFlag{
			Name:        "fp16-acc",
			Usage:       "accumulate float16 operators in float16",
			Destination: &useFP16Acc,
		},
		&cli.BoolFlag{
			Name:        "allow-simt",
			Usage:       "keep kernels that do not use tensor cores",
			Destination: &allowSIMT,
		},
		&cli.Int64Flag{
			Name:        "l2-cache-bytes",
			Usage:       "device L2 size used to plan the profiling working set",
			Destination: &l2CacheBytes,
		},
		&cli.Int64Flag{
			Name:        "device-memory-bytes",
			Usage:       "device memory used to plan the profiling working set",
			Destination: &deviceMemory,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func outputFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "out",
		Aliases:     []string{"o"},
		Usage:       "write to this file instead of stdout",
		Destination: dst,
	}
}

func currentTarget() gemm.Target {
	return gemm.Target{
		Arch:              int(arch),
		NoTF32:            noTF32,
		UseFP16Acc:        useFP16Acc,
		AllowSIMT:         allowSIMT,
		L2CacheBytes:      l2CacheBytes,
		DeviceMemoryBytes: deviceMemory,
	}
}
