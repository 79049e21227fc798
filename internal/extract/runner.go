package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"

	"protex/internal/alphabet"
	"protex/internal/batch"
	"protex/internal/fasta"
	"protex/internal/logger"
	"protex/internal/model"
)

// Model is the inference surface the runner needs. *model.Encoder
// satisfies it; tests substitute a stub.
type Model interface {
	NumLayers() int
	EmbedDim() int
	Forward(toks []int, layers []int, needContacts bool) (*model.Output, error)
}

// Run reads cfg.FastaPath, batches the sequences under the token budget
// and writes one result file per sequence under cfg.OutputDir.
func Run(ctx context.Context, log logger.Logger, m Model, alpha *alphabet.Alphabet, cfg Config) error {
	if !cfg.Include.Any() {
		return fmt.Errorf("nothing to extract: include set is empty")
	}
	if cfg.ToksPerBatch <= 0 {
		cfg.ToksPerBatch = DefaultToksPerBatch
	}

	layers, err := NormalizeLayers(cfg.ReprLayers, m.NumLayers())
	if err != nil {
		return err
	}

	records, err := fasta.Open(cfg.FastaPath)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		log.Warn("no sequences found", "path", cfg.FastaPath)
		return nil
	}

	// Batch on effective residue lengths; a residue is one rune, matching
	// Encode, and extraToksPerSeq accounts for the specials it adds.
	lengths := make([]int, len(records))
	for i, rec := range records {
		lengths[i] = utf8.RuneCountInString(rec.Seq)
		if cfg.TruncationSeqLength > 0 && lengths[i] > cfg.TruncationSeqLength {
			lengths[i] = cfg.TruncationSeqLength
		}
	}
	batches := batch.Plan(lengths, cfg.ToksPerBatch, extraToksPerSeq)

	runLog := log.With("run_id", uuid.NewString())
	runLog.Info("starting extraction",
		"sequences", len(records),
		"batches", len(batches),
		"layers", layers,
	)

	for bi, idxs := range batches {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runLog.Info("processing batch", "batch", bi+1, "of", len(batches), "sequences", len(idxs))

		for _, i := range idxs {
			rec := records[i]
			toks := alpha.Encode(rec.Seq, cfg.TruncationSeqLength)
			out, err := m.Forward(toks, layers, cfg.Include.Contacts)
			if err != nil {
				return fmt.Errorf("sequence %q: %w", rec.Label, err)
			}
			res := buildResult(rec.Label, out, layers, lengths[i], cfg.Include)
			path := filepath.Join(cfg.OutputDir, rec.Label+".json")
			if err := res.WriteFile(path); err != nil {
				return err
			}
		}
	}
	runLog.Info("extraction complete", "files", len(records), "dir", cfg.OutputDir)
	return nil
}

// buildResult slices the forward output down to the sequence's true
// residue span: rows [1, trunc+1) of the hidden state, row 0 for bos,
// and the trunc-by-trunc corner of the contact map.
func buildResult(label string, out *model.Output, layers []int, trunc int, include IncludeSet) *Result {
	res := &Result{Label: label}

	if include.PerTok {
		res.Representations = make(map[int][][]float32, len(layers))
	}
	if include.Mean {
		res.MeanRepresentations = make(map[int][]float32, len(layers))
	}
	if include.BOS {
		res.BosRepresentations = make(map[int][]float32, len(layers))
	}

	for _, layer := range layers {
		states := out.Hidden[layer]
		if include.PerTok {
			rows := make([][]float32, trunc)
			for t := 0; t < trunc; t++ {
				rows[t] = append([]float32(nil), states[t+1]...)
			}
			res.Representations[layer] = rows
		}
		if include.Mean {
			res.MeanRepresentations[layer] = meanRows(states[1 : trunc+1])
		}
		if include.BOS {
			res.BosRepresentations[layer] = append([]float32(nil), states[0]...)
		}
	}

	if include.Contacts {
		res.Contacts = make([][]float32, trunc)
		for i := 0; i < trunc; i++ {
			res.Contacts[i] = append([]float32(nil), out.Contacts[i][:trunc]...)
		}
	}
	return res
}

func meanRows(rows [][]float32) []float32 {
	if len(rows) == 0 {
		return nil
	}
	dim := len(rows[0])
	sum := make([]float64, dim)
	for _, row := range rows {
		for d, v := range row {
			sum[d] += float64(v)
		}
	}
	mean := make([]float32, dim)
	for d := range sum {
		mean[d] = float32(sum[d] / float64(len(rows)))
	}
	return mean
}
