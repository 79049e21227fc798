package gguf

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// ReadTensorF32 loads a tensor by name and returns its values as float32
// along with its dims, dequantizing on the fly for quantized encodings.
func ReadTensorF32(f *File, name string) ([]float32, []uint64, error) {
	info, ok := f.TensorByName(name)
	if !ok {
		return nil, nil, fmt.Errorf("tensor not found: %s", name)
	}
	n, err := tensorElements(info.Dims)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	byteSize, err := tensorByteSize(info.Type, n)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	buf, err := f.tensorBytes(info, byteSize)
	if err != nil {
		return nil, nil, err
	}

	switch info.Type {
	case GGMLTypeF32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return out, info.Dims, nil
	case GGMLTypeF16:
		out := make([]float32, n)
		for i := range out {
			out[i] = fp16ToFloat32(buf[i*2 : i*2+2])
		}
		return out, info.Dims, nil
	case GGMLTypeQ8_0:
		out, err := DequantizeQ80(buf, n)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		return out, info.Dims, nil
	case GGMLTypeQ4_K:
		out, err := DequantizeQ4K(buf, n)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		return out, info.Dims, nil
	case GGMLTypeQ6_K:
		out, err := DequantizeQ6K(buf, n)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		return out, info.Dims, nil
	default:
		return nil, nil, fmt.Errorf("tensor %s (%s): %w", name, info.Type, ErrUnsupportedType)
	}
}

// tensorBytes returns the raw bytes for a tensor, slicing the mmap when
// available and falling back to a positioned read otherwise.
func (f *File) tensorBytes(info TensorInfo, byteSize int) ([]byte, error) {
	off := int64(f.DataOffset + info.Offset)
	if f.Data != nil {
		if int64(len(f.Data)) < off+int64(byteSize) {
			return nil, fmt.Errorf("tensor %s: unexpected EOF (mmap)", info.Name)
		}
		return f.Data[off : off+int64(byteSize)], nil
	}

	buf := make([]byte, byteSize)
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	if _, err := file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", info.Name, err)
	}
	return buf, nil
}

func tensorElements(dims []uint64) (int, error) {
	if len(dims) == 0 {
		return 0, fmt.Errorf("empty dims")
	}
	var n uint64 = 1
	for _, d := range dims {
		if d == 0 {
			return 0, fmt.Errorf("zero dimension")
		}
		n *= d
	}
	if n > uint64(^uint(0)>>1) {
		return 0, fmt.Errorf("tensor too large")
	}
	return int(n), nil
}

func tensorByteSize(t TensorType, n int) (int, error) {
	switch t {
	case GGMLTypeF16:
		return n * 2, nil
	case GGMLTypeF32:
		return n * 4, nil
	case GGMLTypeQ8_0:
		if n%QK8_0 != 0 {
			return 0, fmt.Errorf("q8_0: n must be multiple of %d", QK8_0)
		}
		return (n / QK8_0) * q80BlockSize, nil
	case GGMLTypeQ4_K:
		if n%QK_K != 0 {
			return 0, fmt.Errorf("q4_k: n must be multiple of %d", QK_K)
		}
		return (n / QK_K) * q4kBlockSize, nil
	case GGMLTypeQ6_K:
		if n%QK_K != 0 {
			return 0, fmt.Errorf("q6_k: n must be multiple of %d", QK_K)
		}
		return (n / QK_K) * q6kBlockSize, nil
	default:
		return 0, ErrUnsupportedType
	}
}
