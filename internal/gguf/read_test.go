package gguf

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// buildTestGGUF assembles a minimal v3 container with a string KV, a u32 KV,
// a string-array KV, and one f32 tensor named "token_embd.weight".
func buildTestGGUF(t *testing.T, tensorData []float32, dims []uint64) string {
	t.Helper()

	var buf bytes.Buffer
	le := binary.LittleEndian

	writeStr := func(s string) {
		_ = binary.Write(&buf, le, uint64(len(s)))
		buf.WriteString(s)
	}

	buf.WriteString(magicGGUF)
	_ = binary.Write(&buf, le, uint32(3)) // version
	_ = binary.Write(&buf, le, uint64(1)) // tensor count
	_ = binary.Write(&buf, le, uint64(3)) // kv count

	writeStr("general.architecture")
	_ = binary.Write(&buf, le, uint32(TypeString))
	writeStr("esm2")

	writeStr("esm2.block_count")
	_ = binary.Write(&buf, le, uint32(TypeUint32))
	_ = binary.Write(&buf, le, uint32(6))

	writeStr("tokenizer.ggml.tokens")
	_ = binary.Write(&buf, le, uint32(TypeArray))
	_ = binary.Write(&buf, le, uint32(TypeString))
	_ = binary.Write(&buf, le, uint64(2))
	writeStr("<cls>")
	writeStr("A")

	// tensor directory
	writeStr("token_embd.weight")
	_ = binary.Write(&buf, le, uint32(len(dims)))
	for _, d := range dims {
		_ = binary.Write(&buf, le, d)
	}
	_ = binary.Write(&buf, le, uint32(GGMLTypeF32))
	_ = binary.Write(&buf, le, uint64(0)) // offset within data section

	for buf.Len()%32 != 0 {
		buf.WriteByte(0)
	}
	for _, v := range tensorData {
		_ = binary.Write(&buf, le, math.Float32bits(v))
	}

	path := filepath.Join(t.TempDir(), "test.gguf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write test gguf: %v", err)
	}
	return path
}

func TestOpenRoundTrip(t *testing.T) {
	data := []float32{0.5, -1.25, 3, 0, 42, -0.125}
	path := buildTestGGUF(t, data, []uint64{3, 2})

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.Header.Version != 3 {
		t.Errorf("version: got %d, want 3", f.Header.Version)
	}
	if f.Header.TensorCount != 1 || f.Header.KVCount != 3 {
		t.Errorf("counts: got tensors=%d kv=%d", f.Header.TensorCount, f.Header.KVCount)
	}

	if arch, _ := GetString(f.KV, "general.architecture"); arch != "esm2" {
		t.Errorf("architecture: got %q", arch)
	}
	if depth, _ := GetUint64(f.KV, "esm2.block_count"); depth != 6 {
		t.Errorf("block_count: got %d", depth)
	}
	toks, ok := GetArray[string](f.KV, "tokenizer.ggml.tokens")
	if !ok || len(toks) != 2 || toks[0] != "<cls>" || toks[1] != "A" {
		t.Errorf("tokens: got %v %v", toks, ok)
	}

	info, ok := f.TensorByName("token_embd.weight")
	if !ok {
		t.Fatal("tensor token_embd.weight not found")
	}
	if info.Type != GGMLTypeF32 || len(info.Dims) != 2 {
		t.Errorf("tensor info: %+v", info)
	}

	vals, dims, err := ReadTensorF32(f, "token_embd.weight")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if dims[0] != 3 || dims[1] != 2 {
		t.Errorf("dims: got %v", dims)
	}
	for i, want := range data {
		if vals[i] != want {
			t.Errorf("value %d: got %g, want %g", i, vals[i], want)
		}
	}

	if _, _, err := ReadTensorF32(f, "no.such.tensor"); err == nil {
		t.Error("expected error for missing tensor")
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gguf")
	if err := os.WriteFile(path, []byte("NOPExxxxxxxxxxxxxxxxxxxx"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for invalid magic")
	}
}

func TestDequantizeQ80(t *testing.T) {
	// One block: scale 1.0 in fp16 (0x3C00), quants 0..31.
	block := make([]byte, q80BlockSize)
	block[0] = 0x00
	block[1] = 0x3C
	for i := 0; i < QK8_0; i++ {
		block[2+i] = byte(int8(i - 16))
	}

	out, err := DequantizeQ80(block, QK8_0)
	if err != nil {
		t.Fatalf("DequantizeQ80: %v", err)
	}
	for i := 0; i < QK8_0; i++ {
		want := float32(i - 16)
		if out[i] != want {
			t.Errorf("elem %d: got %g, want %g", i, out[i], want)
		}
	}

	if _, err := DequantizeQ80(block[:10], QK8_0); err == nil {
		t.Error("expected error for truncated block")
	}
	if _, err := DequantizeQ80(block, QK8_0+1); err == nil {
		t.Error("expected error for non-multiple n")
	}
}

func TestFp16ToFloat32(t *testing.T) {
	tests := []struct {
		bits uint16
		want float32
	}{
		{0x0000, 0},
		{0x3C00, 1},
		{0xBC00, -1},
		{0x4000, 2},
		{0x3800, 0.5},
	}
	for _, tc := range tests {
		b := []byte{byte(tc.bits), byte(tc.bits >> 8)}
		if got := fp16ToFloat32(b); got != tc.want {
			t.Errorf("fp16(%#04x): got %g, want %g", tc.bits, got, tc.want)
		}
	}
}
