package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gemmforge/internal/catalog"
)

func catalogCmd() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Inspect or export the kernel catalog",
		Commands: []*cli.Command{
			catalogListCmd(),
			catalogExportCmd(),
		},
	}
}

func catalogListCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List catalog kernels",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			kernels, err := loadCatalog()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "KEY\tKIND\tARCH\tSPLIT_K\n")
			for _, k := range kernels {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", catalog.Key(k), k.Kind, k.Arch, k.SplitK)
			}
			return tw.Flush()
		},
	}
}

func catalogExportCmd() *cli.Command {
	var (
		format  string
		outPath string
	)

	return &cli.Command{
		Name:  "export",
		Usage: "Write the catalog as JSON or YAML, a starting point for a custom catalog file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "json or yaml (default: from --out extension)",
				Destination: &format,
			},
			outputFlag(&outPath),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			kernels, err := loadCatalog()
			if err != nil {
				return err
			}
			f := catalog.Format(format)
			if f == "" {
				f = catalog.FormatFor(outPath)
			}
			data, err := catalog.Encode(kernels, f)
			if err != nil {
				return err
			}
			return writeOutput(outPath, data)
		},
	}
}
