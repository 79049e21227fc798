package tensor

import "math"

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Softmax applies the softmax function to x in place.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// LayerNorm normalizes src to zero mean and unit variance, then applies the
// per-element gain and bias. dst and src may alias.
func LayerNorm(dst, src, gain, bias []float32, eps float32) {
	var sum float32
	for _, v := range src {
		sum += v
	}
	mean := sum / float32(len(src))

	var varSum float32
	for _, v := range src {
		d := v - mean
		varSum += d * d
	}
	variance := varSum / float32(len(src))
	scale := float32(1.0) / float32(math.Sqrt(float64(variance+eps)))

	for i := range src {
		dst[i] = (src[i]-mean)*scale*gain[i] + bias[i]
	}
}

// GELU computes the exact Gaussian Error Linear Unit activation.
func GELU(x float32) float32 {
	return float32(0.5 * float64(x) * (1.0 + math.Erf(float64(x)/math.Sqrt2)))
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// MatVec computes dst = m * x. dst must have length m.R and x length m.C.
func MatVec(dst []float32, m Mat, x []float32) {
	if len(dst) < m.R || len(x) < m.C {
		panic("MatVec shape mismatch")
	}
	for r := 0; r < m.R; r++ {
		dst[r] = Dot(m.Row(r), x)
	}
}

// MatVecBias computes dst = m*x + b.
func MatVecBias(dst []float32, m Mat, x, b []float32) {
	MatVec(dst, m, x)
	Add(dst[:m.R], b)
}

// ApplyRoPE applies rotary positional embeddings to x, laid out as nHead
// contiguous heads of headDim elements. headDim must be even.
func ApplyRoPE(x []float32, nHead, headDim, pos int, invFreq []float64) {
	if headDim%2 != 0 {
		panic("headDim must be even for RoPE")
	}
	for h := 0; h < nHead; h++ {
		base := h * headDim
		for i := 0; i < headDim/2; i++ {
			angle := float64(pos) * invFreq[i]
			c := float32(math.Cos(angle))
			s := float32(math.Sin(angle))
			i0 := base + 2*i
			i1 := i0 + 1
			x0 := x[i0]
			x1 := x[i1]
			x[i0] = x0*c - x1*s
			x[i1] = x0*s + x1*c
		}
	}
}

// RoPEInvFreq precomputes the inverse frequency table used by ApplyRoPE.
func RoPEInvFreq(headDim int, theta float64) []float64 {
	inv := make([]float64, headDim/2)
	for i := range inv {
		inv[i] = 1.0 / math.Pow(theta, float64(2*i)/float64(headDim))
	}
	return inv
}
