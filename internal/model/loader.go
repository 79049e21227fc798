package model

import (
	"fmt"

	"protex/internal/alphabet"
	"protex/internal/gguf"
	"protex/internal/tensor"
)

// Load opens a GGUF checkpoint and assembles the encoder and its
// alphabet. The file's mmap is released before returning; all weights
// are materialized as float32.
func Load(path string) (*Encoder, *alphabet.Alphabet, error) {
	f, err := gguf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open model: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, nil, err
	}
	ab, err := alphabet.FromGGUF(f)
	if err != nil {
		return nil, nil, err
	}
	if cfg.VocabSize == 0 {
		cfg.VocabSize = ab.Len()
	}
	if cfg.VocabSize != ab.Len() {
		return nil, nil, fmt.Errorf("vocab size %d does not match alphabet size %d", cfg.VocabSize, ab.Len())
	}

	e := New(cfg)

	if e.Embed, err = loadMat(f, "token_embd.weight", cfg.VocabSize, cfg.EmbeddingLength); err != nil {
		return nil, nil, err
	}
	d := cfg.EmbeddingLength
	for i := range e.Layers {
		l := &e.Layers[i]
		pre := fmt.Sprintf("blk.%d.", i)
		load := func(dst *tensor.Mat, name string, r, c int) {
			if err == nil {
				*dst, err = loadMat(f, pre+name, r, c)
			}
		}
		loadv := func(dst *[]float32, name string, n int) {
			if err == nil {
				*dst, err = loadVec(f, pre+name, n)
			}
		}
		loadv(&l.AttnNorm, "attn_norm.weight", d)
		loadv(&l.AttnNormBias, "attn_norm.bias", d)
		load(&l.Wq, "attn_q.weight", d, d)
		loadv(&l.BQ, "attn_q.bias", d)
		load(&l.Wk, "attn_k.weight", d, d)
		loadv(&l.BK, "attn_k.bias", d)
		load(&l.Wv, "attn_v.weight", d, d)
		loadv(&l.BV, "attn_v.bias", d)
		load(&l.Wo, "attn_output.weight", d, d)
		loadv(&l.BO, "attn_output.bias", d)
		loadv(&l.FfnNorm, "ffn_norm.weight", d)
		loadv(&l.FfnNormBias, "ffn_norm.bias", d)
		load(&l.Wup, "ffn_up.weight", cfg.FFNLength, d)
		loadv(&l.BUp, "ffn_up.bias", cfg.FFNLength)
		load(&l.Wdown, "ffn_down.weight", d, cfg.FFNLength)
		loadv(&l.BDown, "ffn_down.bias", d)
		if err != nil {
			return nil, nil, err
		}
	}

	if e.FinalNorm, err = loadVec(f, "output_norm.weight", d); err != nil {
		return nil, nil, err
	}
	if e.FinalNormBias, err = loadVec(f, "output_norm.bias", d); err != nil {
		return nil, nil, err
	}

	// The contact head is optional; checkpoints exported without it can
	// still serve every representation kind except contacts.
	if _, ok := f.TensorByName("contact_head.weight"); ok {
		w, _, err := gguf.ReadTensorF32(f, "contact_head.weight")
		if err != nil {
			return nil, nil, err
		}
		if want := cfg.BlockCount * cfg.HeadCount; len(w) != want {
			return nil, nil, fmt.Errorf("contact_head.weight: %d coefficients, want %d", len(w), want)
		}
		head := &ContactHead{Weights: w}
		if _, ok := f.TensorByName("contact_head.bias"); ok {
			b, _, err := gguf.ReadTensorF32(f, "contact_head.bias")
			if err != nil {
				return nil, nil, err
			}
			if len(b) != 1 {
				return nil, nil, fmt.Errorf("contact_head.bias: %d values, want 1", len(b))
			}
			head.Bias = b[0]
		}
		e.Contact = head
	}

	return e, ab, nil
}

// loadMat reads a 2-D tensor as a rows x cols matrix. GGUF stores dims
// innermost first, so dims[0] is the row width.
func loadMat(f *gguf.File, name string, rows, cols int) (tensor.Mat, error) {
	vals, dims, err := gguf.ReadTensorF32(f, name)
	if err != nil {
		return tensor.Mat{}, err
	}
	if len(dims) != 2 || int(dims[1]) != rows || int(dims[0]) != cols {
		return tensor.Mat{}, fmt.Errorf("tensor %s: dims %v, want [%d %d]", name, dims, cols, rows)
	}
	return tensor.NewMatFromData(rows, cols, vals), nil
}

func loadVec(f *gguf.File, name string, n int) ([]float32, error) {
	vals, dims, err := gguf.ReadTensorF32(f, name)
	if err != nil {
		return nil, err
	}
	if len(dims) != 1 || len(vals) != n {
		return nil, fmt.Errorf("tensor %s: dims %v, want [%d]", name, dims, n)
	}
	return vals, nil
}
