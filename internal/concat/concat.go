// Package concat assembles the mean representations of a result tree
// into a single CSV table.
package concat

import (
	"encoding/csv"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"protex/internal/extract"
	"protex/internal/logger"
)

// HighestLayer selects the largest layer index present in each file.
const HighestLayer = -1

// Run scans dir recursively for result files, takes one mean
// representation per file and writes them as CSV rows to outPath. With
// layer set to HighestLayer the largest layer key in each file is used;
// otherwise the named layer must be present in every file. An empty scan
// logs and writes nothing.
func Run(log logger.Logger, dir, outPath string, layer int) error {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		log.Warn("no result files found, skipping concatenation", "dir", dir)
		return nil
	}

	type row struct {
		label string
		mean  []float32
	}
	rows := make([]row, 0, len(files))
	dim := -1
	for _, path := range files {
		res, err := extract.ReadFile(path)
		if err != nil {
			return err
		}
		mean, err := pickMean(res, layer)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if dim == -1 {
			dim = len(mean)
		} else if len(mean) != dim {
			return fmt.Errorf("%s: mean representation width %d, earlier files had %d", path, len(mean), dim)
		}
		rows = append(rows, row{label: res.Label, mean: mean})
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, dim+1)
	header[0] = "label"
	for i := 0; i < dim; i++ {
		header[i+1] = strconv.Itoa(i)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, dim+1)
	for _, r := range rows {
		record[0] = r.label
		for i, v := range r.mean {
			record[i+1] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	log.Info("wrote concatenated table", "rows", len(rows), "path", outPath)
	return nil
}

func pickMean(res *extract.Result, layer int) ([]float32, error) {
	if len(res.MeanRepresentations) == 0 {
		return nil, fmt.Errorf("no mean representations saved for %q", res.Label)
	}
	if layer != HighestLayer {
		mean, ok := res.MeanRepresentations[layer]
		if !ok {
			return nil, fmt.Errorf("layer %d not saved for %q", layer, res.Label)
		}
		return mean, nil
	}
	best := -1
	for l := range res.MeanRepresentations {
		if l > best {
			best = l
		}
	}
	return res.MeanRepresentations[best], nil
}

// OutputName derives the CSV file name for an extraction run,
// <fasta-stem>_<model-stem>.csv.
func OutputName(fastaPath, modelPath string) string {
	return stem(fastaPath) + "_" + stem(modelPath) + ".csv"
}

func stem(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".gz")
	return strings.TrimSuffix(base, filepath.Ext(base))
}
