package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"protex/internal/gguf"
)

func inspectCmd() *cli.Command {
	var (
		showTensors  bool
		asJSON       bool
		tensorLimit  int
		tensorFilter string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect the contents of a .gguf model container",
		ArgsUsage: "<model.gguf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "tensors", Usage: "list the tensor directory", Destination: &showTensors},
			&cli.BoolFlag{Name: "json", Usage: "emit the full metadata as JSON", Destination: &asJSON},
			&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &tensorLimit},
			&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &tensorFilter},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_ = ctx
			if cmd.Args().Len() != 1 {
				return cli.Exit("usage: protex inspect <model.gguf>", 1)
			}
			modelPath := cmd.Args().Get(0)

			stat, err := os.Stat(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat model path %q: %v", modelPath, err), 1)
			}
			if stat.IsDir() {
				return cli.Exit("error: protex inspect expects a .gguf file", 1)
			}

			f, err := gguf.Open(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open gguf: %v", err), 1)
			}
			defer func() { _ = f.Close() }()

			if asJSON {
				return printJSON(f)
			}

			fmt.Printf("GGUF Inspect: %s\n", modelPath)
			fmt.Printf("File: %s (%s)\n", filepath.Base(modelPath), formatBytes(uint64(stat.Size())))
			fmt.Printf("GGUF Header: v%d tensors=%d kv=%d align=%d\n",
				f.Header.Version, f.Header.TensorCount, f.Header.KVCount, f.Alignment)

			printMetadata(f)
			printTensorSummary(f)
			if showTensors {
				printTensors(f, tensorFilter, tensorLimit)
			}
			return nil
		},
	}
}

func printJSON(f *gguf.File) error {
	type tensorJSON struct {
		Name string   `json:"name"`
		Type string   `json:"type"`
		Dims []uint64 `json:"dims"`
	}
	out := struct {
		Version   uint32         `json:"version"`
		Alignment uint64         `json:"alignment"`
		Metadata  map[string]any `json:"metadata"`
		Tensors   []tensorJSON   `json:"tensors"`
	}{
		Version:   f.Header.Version,
		Alignment: f.Alignment,
		Metadata:  make(map[string]any, len(f.KV)),
	}
	for k, v := range f.KV {
		out.Metadata[k] = v.Value
	}
	for _, t := range f.Tensors {
		out.Tensors = append(out.Tensors, tensorJSON{Name: t.Name, Type: t.Type.String(), Dims: t.Dims})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printMetadata(f *gguf.File) {
	section("Metadata")
	keys := make([]string, 0, len(f.KV))
	for k := range f.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		row(k, formatValue(f.KV[k]))
	}
}

func printTensorSummary(f *gguf.File) {
	section("Tensor Summary")
	rowInt("tensors", len(f.Tensors))

	typeCounts := map[string]int{}
	for _, t := range f.Tensors {
		typeCounts[t.Type.String()]++
	}
	names := make([]string, 0, len(typeCounts))
	for n := range typeCounts {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		rowInt("type_"+n, typeCounts[n])
	}
}

func printTensors(f *gguf.File, filter string, limit int) {
	section("Tensor Directory")
	printed := 0
	for _, t := range f.Tensors {
		if filter != "" && !strings.Contains(t.Name, filter) {
			continue
		}
		fmt.Printf("%s  type=%s dims=%s off=%d\n", t.Name, t.Type, formatDims(t.Dims), t.Offset)
		printed++
		if limit > 0 && printed >= limit {
			break
		}
	}
	if limit > 0 && printed < len(f.Tensors) {
		fmt.Printf("... (%d shown of %d)\n", printed, len(f.Tensors))
	}
}

func formatValue(v gguf.Value) string {
	if arr, ok := v.Value.(gguf.ArrayValue); ok {
		if len(arr.Values) > 8 {
			return fmt.Sprintf("[%d %s values]", len(arr.Values), arr.ElemType)
		}
		parts := make([]string, len(arr.Values))
		for i, item := range arr.Values {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	if s, ok := v.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v.Value)
}

func formatDims(dims []uint64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-36s %s\n", label+":", value)
}

func rowInt(label string, v int) {
	if v == 0 {
		return
	}
	row(label, fmt.Sprintf("%d", v))
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
