package model

import (
	"fmt"
	"math"

	"protex/internal/tensor"
)

// Layer holds the weights of one transformer block.
type Layer struct {
	AttnNorm     []float32
	AttnNormBias []float32

	Wq, Wk, Wv, Wo tensor.Mat
	BQ, BK, BV, BO []float32

	FfnNorm     []float32
	FfnNormBias []float32

	Wup, Wdown tensor.Mat
	BUp, BDown []float32
}

// Encoder is a bidirectional transformer over residue tokens: pre-norm
// blocks with rotary attention and a GELU feed-forward, followed by a
// final LayerNorm. It is a pure CPU implementation; the forward pass
// never tracks gradients.
type Encoder struct {
	Config Config

	Embed  tensor.Mat
	Layers []Layer

	FinalNorm     []float32
	FinalNormBias []float32

	// Contact is nil when the checkpoint carries no contact head.
	Contact *ContactHead

	headDim int
	invFreq []float64
}

// New allocates an encoder with zeroed weights for the given config.
// The loader fills the weights from a checkpoint; tests fill them with
// random values.
func New(cfg Config) *Encoder {
	d := cfg.EmbeddingLength
	e := &Encoder{
		Config:        cfg,
		Embed:         tensor.NewMat(cfg.VocabSize, d),
		Layers:        make([]Layer, cfg.BlockCount),
		FinalNorm:     make([]float32, d),
		FinalNormBias: make([]float32, d),
		headDim:       d / cfg.HeadCount,
	}
	e.invFreq = tensor.RoPEInvFreq(e.headDim, cfg.RopeFreqBase)
	for i := range e.Layers {
		e.Layers[i] = Layer{
			AttnNorm:     make([]float32, d),
			AttnNormBias: make([]float32, d),
			Wq:           tensor.NewMat(d, d),
			Wk:           tensor.NewMat(d, d),
			Wv:           tensor.NewMat(d, d),
			Wo:           tensor.NewMat(d, d),
			BQ:           make([]float32, d),
			BK:           make([]float32, d),
			BV:           make([]float32, d),
			BO:           make([]float32, d),
			FfnNorm:      make([]float32, d),
			FfnNormBias:  make([]float32, d),
			Wup:          tensor.NewMat(cfg.FFNLength, d),
			Wdown:        tensor.NewMat(d, cfg.FFNLength),
			BUp:          make([]float32, cfg.FFNLength),
			BDown:        make([]float32, d),
		}
	}
	return e
}

// NumLayers returns the transformer depth.
func (e *Encoder) NumLayers() int { return e.Config.BlockCount }

// EmbedDim returns the hidden state width.
func (e *Encoder) EmbedDim() int { return e.Config.EmbeddingLength }

// Output holds the results of one forward pass over a single sequence.
type Output struct {
	// Hidden maps a resolved layer index (0 = embedding output, up to
	// NumLayers) to the per-token hidden states, [T][D], row 0 being the
	// CLS position.
	Hidden map[int][][]float32

	// Contacts is the residue-level contact map (CLS and EOS stripped),
	// present only when requested.
	Contacts [][]float32
}

// Forward runs the encoder over one token sequence and collects the
// hidden states of the requested resolved layer indices. Layer indices
// must already be normalized to [0, NumLayers]. When needContacts is
// set, attention maps are retained and passed through the contact head.
func (e *Encoder) Forward(toks []int, layers []int, needContacts bool) (*Output, error) {
	seqLen := len(toks)
	if seqLen == 0 {
		return nil, fmt.Errorf("empty token sequence")
	}
	if needContacts && e.Contact == nil {
		return nil, fmt.Errorf("checkpoint has no contact head")
	}
	want := make(map[int]bool, len(layers))
	for _, l := range layers {
		if l < 0 || l > e.NumLayers() {
			return nil, fmt.Errorf("layer index %d out of range [0, %d]", l, e.NumLayers())
		}
		want[l] = true
	}

	d := e.EmbedDim()
	nHead := e.Config.HeadCount
	eps := float32(e.Config.LayerNormEps)

	x := make([][]float32, seqLen)
	for t, tok := range toks {
		if tok < 0 || tok >= e.Embed.R {
			return nil, fmt.Errorf("token id %d out of range", tok)
		}
		x[t] = make([]float32, d)
		e.Embed.RowTo(x[t], tok)
	}

	out := &Output{Hidden: make(map[int][][]float32, len(want))}
	if want[0] {
		out.Hidden[0] = copyStates(x)
	}

	// attnMaps[layer][head] is a seqLen x seqLen attention map, kept only
	// when the contact head needs it.
	var attnMaps [][][][]float32
	if needContacts {
		attnMaps = make([][][][]float32, len(e.Layers))
	}

	normed := make([][]float32, seqLen)
	q := make([][]float32, seqLen)
	k := make([][]float32, seqLen)
	v := make([][]float32, seqLen)
	for t := 0; t < seqLen; t++ {
		normed[t] = make([]float32, d)
		q[t] = make([]float32, d)
		k[t] = make([]float32, d)
		v[t] = make([]float32, d)
	}
	attnOut := make([]float32, d)
	proj := make([]float32, d)
	ffnHidden := make([]float32, e.Config.FFNLength)
	scores := make([]float32, seqLen)
	scale := float32(1.0 / math.Sqrt(float64(e.headDim)))

	for li := range e.Layers {
		layer := &e.Layers[li]

		// Attention block: pre-norm, rotary multi-head attention, residual.
		for t := 0; t < seqLen; t++ {
			tensor.LayerNorm(normed[t], x[t], layer.AttnNorm, layer.AttnNormBias, eps)
			tensor.MatVecBias(q[t], layer.Wq, normed[t], layer.BQ)
			tensor.MatVecBias(k[t], layer.Wk, normed[t], layer.BK)
			tensor.MatVecBias(v[t], layer.Wv, normed[t], layer.BV)
			tensor.ApplyRoPE(q[t], nHead, e.headDim, t, e.invFreq)
			tensor.ApplyRoPE(k[t], nHead, e.headDim, t, e.invFreq)
		}

		var heads [][][]float32
		if needContacts {
			heads = make([][][]float32, nHead)
			for h := range heads {
				heads[h] = make([][]float32, seqLen)
			}
		}

		for t := 0; t < seqLen; t++ {
			for i := range attnOut {
				attnOut[i] = 0
			}
			for h := 0; h < nHead; h++ {
				lo := h * e.headDim
				hi := lo + e.headDim
				for j := 0; j < seqLen; j++ {
					scores[j] = tensor.Dot(q[t][lo:hi], k[j][lo:hi]) * scale
				}
				tensor.Softmax(scores)
				if needContacts {
					heads[h][t] = append([]float32(nil), scores...)
				}
				for j := 0; j < seqLen; j++ {
					w := scores[j]
					if w == 0 {
						continue
					}
					vj := v[j][lo:hi]
					dst := attnOut[lo:hi]
					for i := range dst {
						dst[i] += w * vj[i]
					}
				}
			}
			tensor.MatVecBias(proj, layer.Wo, attnOut, layer.BO)
			tensor.Add(x[t], proj)
		}
		if needContacts {
			attnMaps[li] = heads
		}

		// FFN block: pre-norm, GELU feed-forward, residual.
		for t := 0; t < seqLen; t++ {
			tensor.LayerNorm(normed[t], x[t], layer.FfnNorm, layer.FfnNormBias, eps)
			tensor.MatVecBias(ffnHidden, layer.Wup, normed[t], layer.BUp)
			for i := range ffnHidden {
				ffnHidden[i] = tensor.GELU(ffnHidden[i])
			}
			tensor.MatVecBias(proj, layer.Wdown, ffnHidden, layer.BDown)
			tensor.Add(x[t], proj)
		}

		if want[li+1] && li+1 < e.NumLayers() {
			out.Hidden[li+1] = copyStates(x)
		}
	}

	// Final norm; the last layer's representation is post-norm.
	for t := 0; t < seqLen; t++ {
		tensor.LayerNorm(x[t], x[t], e.FinalNorm, e.FinalNormBias, eps)
	}
	if want[e.NumLayers()] {
		out.Hidden[e.NumLayers()] = copyStates(x)
	}

	if needContacts {
		out.Contacts = e.Contact.Predict(attnMaps, seqLen)
	}
	return out, nil
}

func copyStates(x [][]float32) [][]float32 {
	out := make([][]float32, len(x))
	for i, row := range x {
		out[i] = append([]float32(nil), row...)
	}
	return out
}
