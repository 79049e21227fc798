package model

import (
	"math"
	"testing"

	"protex/internal/alphabet"
	"protex/internal/tensor"
)

// newTestEncoder builds a small randomly initialized encoder. Norm gains
// are set to one so activations keep a usable scale.
func newTestEncoder(tb testing.TB) *Encoder {
	tb.Helper()
	cfg := Config{
		Arch:            "esm2",
		BlockCount:      2,
		EmbeddingLength: 8,
		FFNLength:       16,
		HeadCount:       2,
		LayerNormEps:    1e-5,
		RopeFreqBase:    10000,
		VocabSize:       33,
	}
	e := New(cfg)

	seed := int64(7)
	fill := func(m *tensor.Mat) {
		tensor.FillRand(m, seed)
		seed++
	}
	ones := func(v []float32) {
		for i := range v {
			v[i] = 1
		}
	}

	fill(&e.Embed)
	for i := range e.Layers {
		l := &e.Layers[i]
		ones(l.AttnNorm)
		ones(l.FfnNorm)
		fill(&l.Wq)
		fill(&l.Wk)
		fill(&l.Wv)
		fill(&l.Wo)
		fill(&l.Wup)
		fill(&l.Wdown)
	}
	ones(e.FinalNorm)

	w := make([]float32, cfg.BlockCount*cfg.HeadCount)
	for i := range w {
		w[i] = 0.5
	}
	e.Contact = &ContactHead{Weights: w, Bias: -0.1}
	return e
}

func testTokens(tb testing.TB, seq string) []int {
	tb.Helper()
	return alphabet.Default().Encode(seq, 0)
}

func TestForwardShapes(t *testing.T) {
	e := newTestEncoder(t)
	toks := testTokens(t, "MKVLA")

	out, err := e.Forward(toks, []int{0, 1, 2}, true)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if len(out.Hidden) != 3 {
		t.Fatalf("hidden layers: got %d, want 3", len(out.Hidden))
	}
	for layer, states := range out.Hidden {
		if len(states) != len(toks) {
			t.Errorf("layer %d: %d positions, want %d", layer, len(states), len(toks))
		}
		for _, row := range states {
			if len(row) != e.EmbedDim() {
				t.Errorf("layer %d: row width %d, want %d", layer, len(row), e.EmbedDim())
			}
		}
	}

	n := len(toks) - 2 // residues only
	if len(out.Contacts) != n {
		t.Fatalf("contacts: %d rows, want %d", len(out.Contacts), n)
	}
	for i, row := range out.Contacts {
		if len(row) != n {
			t.Fatalf("contacts row %d: %d cols, want %d", i, len(row), n)
		}
		for j, p := range row {
			if p < 0 || p > 1 {
				t.Errorf("contact (%d,%d) = %g outside [0,1]", i, j, p)
			}
		}
	}
}

func TestForwardContactsSymmetric(t *testing.T) {
	e := newTestEncoder(t)
	out, err := e.Forward(testTokens(t, "MKVLAG"), []int{2}, true)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for i := range out.Contacts {
		for j := range out.Contacts[i] {
			if d := math.Abs(float64(out.Contacts[i][j] - out.Contacts[j][i])); d > 1e-5 {
				t.Fatalf("contact map asymmetric at (%d,%d): delta %g", i, j, d)
			}
		}
	}
}

func TestForwardLayerSelection(t *testing.T) {
	e := newTestEncoder(t)
	toks := testTokens(t, "MKV")

	out, err := e.Forward(toks, []int{2}, false)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(out.Hidden) != 1 {
		t.Fatalf("got %d hidden entries, want 1", len(out.Hidden))
	}
	if _, ok := out.Hidden[2]; !ok {
		t.Fatal("layer 2 missing from output")
	}
	if out.Contacts != nil {
		t.Fatal("contacts present without being requested")
	}
}

func TestForwardDeterministic(t *testing.T) {
	e := newTestEncoder(t)
	toks := testTokens(t, "MKVL")

	a, err := e.Forward(toks, []int{2}, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Forward(toks, []int{2}, false)
	if err != nil {
		t.Fatal(err)
	}
	for ti := range a.Hidden[2] {
		for di := range a.Hidden[2][ti] {
			if a.Hidden[2][ti][di] != b.Hidden[2][ti][di] {
				t.Fatal("forward pass not deterministic")
			}
		}
	}
}

func TestForwardRejectsBadLayer(t *testing.T) {
	e := newTestEncoder(t)
	toks := testTokens(t, "MKV")

	if _, err := e.Forward(toks, []int{3}, false); err == nil {
		t.Error("expected error for layer beyond depth")
	}
	if _, err := e.Forward(toks, []int{-1}, false); err == nil {
		t.Error("expected error for unnormalized negative layer")
	}
}

func TestForwardContactsWithoutHead(t *testing.T) {
	e := newTestEncoder(t)
	e.Contact = nil
	if _, err := e.Forward(testTokens(t, "MKV"), []int{2}, true); err == nil {
		t.Fatal("expected error when contact head is absent")
	}
}

func TestForwardEmptySequence(t *testing.T) {
	e := newTestEncoder(t)
	if _, err := e.Forward(nil, []int{2}, false); err == nil {
		t.Fatal("expected error for empty sequence")
	}
}
