package model

import "protex/internal/tensor"

// ContactHead scores residue-residue proximity from attention maps: the
// per-layer, per-head attention stack is symmetrized, corrected with
// average product correction, and passed through a logistic regression
// over the layer*head feature axis.
type ContactHead struct {
	// Weights holds one coefficient per (layer, head) pair, layer-major.
	Weights []float32
	Bias    float32
}

// Predict derives the residue-level contact map from the attention maps
// of a forward pass over seqLen tokens. The CLS and EOS positions are
// stripped, so the result is (seqLen-2) x (seqLen-2).
func (c *ContactHead) Predict(attn [][][][]float32, seqLen int) [][]float32 {
	n := seqLen - 2
	if n <= 0 {
		return [][]float32{}
	}

	nFeat := 0
	for _, heads := range attn {
		nFeat += len(heads)
	}
	features := make([][][]float32, 0, nFeat)
	for _, heads := range attn {
		for _, m := range heads {
			features = append(features, apc(symmetrize(stripSpecials(m, n))))
		}
	}

	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, n)
		for j := range out[i] {
			sum := c.Bias
			for f, m := range features {
				sum += c.Weights[f] * m[i][j]
			}
			out[i][j] = tensor.Sigmoid(sum)
		}
	}
	return out
}

// stripSpecials drops the CLS row/column and everything past the last
// residue (the EOS position), leaving an n x n residue map.
func stripSpecials(m [][]float32, n int) [][]float32 {
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		out[i] = append([]float32(nil), m[i+1][1:n+1]...)
	}
	return out
}

func symmetrize(m [][]float32) [][]float32 {
	n := len(m)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := m[i][j] + m[j][i]
			m[i][j] = s
			m[j][i] = s
		}
		m[i][i] *= 2
	}
	return m
}

// apc applies average product correction: each cell is reduced by the
// product of its row and column sums over the grand total.
func apc(m [][]float32) [][]float32 {
	n := len(m)
	if n == 0 {
		return m
	}
	rows := make([]float32, n)
	cols := make([]float32, n)
	var total float32
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rows[i] += m[i][j]
			cols[j] += m[i][j]
			total += m[i][j]
		}
	}
	if total == 0 {
		return m
	}
	inv := 1 / total
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m[i][j] -= rows[i] * cols[j] * inv
		}
	}
	return m
}
