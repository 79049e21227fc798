package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"protex/internal/backend"
	"protex/internal/concat"
	"protex/internal/extract"
	"protex/internal/logger"
	"protex/internal/model"
)

func extractCmd() *cli.Command {
	var (
		toksPerBatch   int64
		truncation     int64
		nogpu          bool
		concatenateDir string
	)

	return &cli.Command{
		Name:      "extract",
		Usage:     "Extract per-sequence representations from a FASTA file",
		ArgsUsage: "<model.gguf> <fasta> <output-dir>",
		Flags: append([]cli.Flag{
			&cli.Int64Flag{
				Name:        "toks_per_batch",
				Usage:       "token budget per batch",
				Value:       extract.DefaultToksPerBatch,
				Destination: &toksPerBatch,
			},
			&cli.IntSliceFlag{
				Name:  "repr_layers",
				Usage: "layer indices to extract (negatives count from the end)",
				Value: []int{-1},
			},
			&cli.StringSliceFlag{
				Name:     "include",
				Usage:    "representations to save (per_tok, mean, bos, contacts)",
				Required: true,
			},
			&cli.Int64Flag{
				Name:        "truncation_seq_length",
				Usage:       "residue truncation limit",
				Value:       extract.DefaultTruncation,
				Destination: &truncation,
			},
			&cli.BoolFlag{
				Name:        "nogpu",
				Usage:       "force CPU even when an accelerator is available",
				Destination: &nogpu,
			},
			&cli.StringFlag{
				Name:        "concatenate_dir",
				Usage:       "after extraction, write a combined mean-representation CSV here",
				Destination: &concatenateDir,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 3 {
				return cli.Exit("usage: protex extract <model.gguf> <fasta> <output-dir>", 1)
			}
			modelPath, fastaPath, outputDir := args.Get(0), args.Get(1), args.Get(2)

			applyExtractConfig(cmd, LoadConfig(), &toksPerBatch, &truncation)
			log := buildLogger()
			ctx = logger.WithContext(ctx, log)

			include, err := extract.ParseInclude(cmd.StringSlice("include"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			dev := backend.Pick(nogpu)
			log.Info("selected device", "device", dev, "available", backend.Available())

			enc, alpha, err := model.Load(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("loading model: %v", err), 1)
			}
			log.Info("model loaded",
				"path", modelPath,
				"layers", enc.NumLayers(),
				"dim", enc.EmbedDim(),
			)

			cfg := extract.Config{
				ModelPath:           modelPath,
				FastaPath:           fastaPath,
				OutputDir:           outputDir,
				ToksPerBatch:        int(toksPerBatch),
				ReprLayers:          cmd.IntSlice("repr_layers"),
				Include:             include,
				TruncationSeqLength: int(truncation),
				NoGPU:               nogpu,
			}
			if err := extract.Run(ctx, log, enc, alpha, cfg); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			if concatenateDir != "" {
				if err := os.MkdirAll(concatenateDir, 0o755); err != nil {
					return cli.Exit(err.Error(), 1)
				}
				out := filepath.Join(concatenateDir, concat.OutputName(fastaPath, modelPath))
				if err := concat.Run(log, outputDir, out, concat.HighestLayer); err != nil {
					return cli.Exit(err.Error(), 1)
				}
			}
			return nil
		},
	}
}
