package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

func dispatchCmd() *cli.Command {
	var (
		opPath  string
		key     string
		outPath string
		header  bool
	)

	return &cli.Command{
		Name:  "dispatch",
		Usage: "Emit the production function running one candidate",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "op",
				Usage:       "operator descriptor (.json or .yaml, - for stdin)",
				Required:    true,
				Destination: &opPath,
			},
			&cli.StringFlag{
				Name:        "key",
				Usage:       "candidate key (default: first candidate)",
				Destination: &key,
			},
			&cli.BoolFlag{
				Name:        "decl",
				Usage:       "print the declaration and call site instead of the definition",
				Destination: &header,
			},
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
			d, err := compiler.Dispatch(op, key)
			if err != nil {
				return err
			}
			if header {
				return writeOutput(outPath, []byte(d.Decl+"\n"+d.Call+"\n"))
			}
			return writeOutput(outPath, []byte(d.Source))
		},
	}
}
