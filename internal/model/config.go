package model

import (
	"errors"
	"fmt"

	"protex/internal/gguf"
)

// Config describes an encoder checkpoint, parsed from GGUF metadata.
type Config struct {
	Arch            string
	BlockCount      int
	EmbeddingLength int
	FFNLength       int
	HeadCount       int
	LayerNormEps    float64
	RopeFreqBase    float64
	ContextLength   int
	VocabSize       int
}

// ErrMSAModel marks checkpoints with multi-sequence-alignment input,
// which this runtime does not handle.
var ErrMSAModel = errors.New("models with MSA input are not supported")

var msaArchs = map[string]bool{
	"esm-msa":         true,
	"esm_msa1b":       true,
	"msa-transformer": true,
}

// ParseConfig reads the encoder hyperparameters from the metadata table.
// Architecture-scoped keys use the architecture name as prefix, e.g.
// esm2.block_count.
func ParseConfig(f *gguf.File) (Config, error) {
	arch, err := gguf.MustGetString(f.KV, "general.architecture")
	if err != nil {
		return Config{}, err
	}
	if msaArchs[arch] {
		return Config{}, fmt.Errorf("architecture %q: %w", arch, ErrMSAModel)
	}

	key := func(suffix string) string { return arch + "." + suffix }

	blocks, err := gguf.MustGetUint64(f.KV, key("block_count"))
	if err != nil {
		return Config{}, err
	}
	emb, err := gguf.MustGetUint64(f.KV, key("embedding_length"))
	if err != nil {
		return Config{}, err
	}
	ffn, err := gguf.MustGetUint64(f.KV, key("feed_forward_length"))
	if err != nil {
		return Config{}, err
	}
	heads, err := gguf.MustGetUint64(f.KV, key("attention.head_count"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Arch:            arch,
		BlockCount:      int(blocks),
		EmbeddingLength: int(emb),
		FFNLength:       int(ffn),
		HeadCount:       int(heads),
		LayerNormEps:    1e-5,
		RopeFreqBase:    10000,
	}
	if eps, ok := gguf.GetFloat64(f.KV, key("attention.layer_norm_epsilon")); ok {
		cfg.LayerNormEps = eps
	}
	if base, ok := gguf.GetFloat64(f.KV, key("rope.freq_base")); ok {
		cfg.RopeFreqBase = base
	}
	if ctx, ok := gguf.GetUint64(f.KV, key("context_length")); ok {
		cfg.ContextLength = int(ctx)
	}
	if vocab, ok := gguf.GetUint64(f.KV, key("vocab_size")); ok {
		cfg.VocabSize = int(vocab)
	}

	if cfg.BlockCount <= 0 || cfg.EmbeddingLength <= 0 || cfg.FFNLength <= 0 || cfg.HeadCount <= 0 {
		return Config{}, fmt.Errorf("invalid model dimensions: blocks=%d embedding=%d ffn=%d heads=%d",
			cfg.BlockCount, cfg.EmbeddingLength, cfg.FFNLength, cfg.HeadCount)
	}
	if cfg.EmbeddingLength%cfg.HeadCount != 0 {
		return Config{}, fmt.Errorf("embedding length %d not divisible by head count %d",
			cfg.EmbeddingLength, cfg.HeadCount)
	}
	return cfg, nil
}
