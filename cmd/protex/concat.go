package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"protex/internal/concat"
)

func concatCmd() *cli.Command {
	var layer int64

	return &cli.Command{
		Name:      "concat",
		Usage:     "Concatenate saved mean representations into a CSV table",
		ArgsUsage: "<results-dir> <out.csv>",
		Flags: append([]cli.Flag{
			&cli.Int64Flag{
				Name:        "layer",
				Usage:       "layer to take from each file (default: highest saved layer)",
				Value:       concat.HighestLayer,
				Destination: &layer,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return cli.Exit("usage: protex concat <results-dir> <out.csv>", 1)
			}
			applyLogConfig(cmd, LoadConfig())
			log := buildLogger()

			if err := concat.Run(log, args.Get(0), args.Get(1), int(layer)); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}
