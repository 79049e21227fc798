package gguf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// Open parses the GGUF container at path. The file is mapped read-only so
// tensor reads are zero-copy; callers must Close the returned File to drop
// the mapping.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, err
	}
	size := st.Size()

	var data []byte
	if size > 0 {
		if mapped, merr := unix.Mmap(int(fh.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED); merr == nil {
			data = mapped
		}
	}

	var dec *decoder
	if data != nil {
		_ = fh.Close()
		dec = newDecoder(bytes.NewReader(data), size)
	} else {
		dec = newDecoder(fh, size)
	}
	fail := func(err error) (*File, error) {
		if data != nil {
			_ = unix.Munmap(data)
		} else {
			_ = fh.Close()
		}
		return nil, err
	}

	magic, err := dec.bytes(4)
	if err != nil {
		return fail(err)
	}
	if string(magic) != magicGGUF {
		return fail(fmt.Errorf("invalid magic: %q", string(magic)))
	}
	version, err := dec.u32()
	if err != nil {
		return fail(err)
	}
	tensorCount, err := dec.u64()
	if err != nil {
		return fail(err)
	}
	kvCount, err := dec.u64()
	if err != nil {
		return fail(err)
	}

	kv := make(map[string]Value, kvCount)
	for i := uint64(0); i < kvCount; i++ {
		key, err := dec.str()
		if err != nil {
			return fail(fmt.Errorf("read key %d: %w", i, err))
		}
		vt, err := dec.u32()
		if err != nil {
			return fail(fmt.Errorf("read value type for %s: %w", key, err))
		}
		val, err := readValue(dec, ValueType(vt))
		if err != nil {
			return fail(fmt.Errorf("read value for %s: %w", key, err))
		}
		kv[key] = Value{Type: ValueType(vt), Value: val}
	}

	tensors := make([]TensorInfo, 0, tensorCount)
	for i := uint64(0); i < tensorCount; i++ {
		name, err := dec.str()
		if err != nil {
			return fail(fmt.Errorf("read tensor name %d: %w", i, err))
		}
		nDim, err := dec.u32()
		if err != nil {
			return fail(fmt.Errorf("read tensor dims %s: %w", name, err))
		}
		dims := make([]uint64, nDim)
		for d := range dims {
			if dims[d], err = dec.u64(); err != nil {
				return fail(fmt.Errorf("read tensor dim %s[%d]: %w", name, d, err))
			}
		}
		tt, err := dec.u32()
		if err != nil {
			return fail(fmt.Errorf("read tensor type %s: %w", name, err))
		}
		offset, err := dec.u64()
		if err != nil {
			return fail(fmt.Errorf("read tensor offset %s: %w", name, err))
		}
		tensors = append(tensors, TensorInfo{
			Name:   name,
			Dims:   dims,
			Type:   TensorType(tt),
			Offset: offset,
		})
	}

	if data == nil {
		_ = fh.Close()
	}

	alignment := uint64(32)
	if v, ok := kv["general.alignment"]; ok {
		if u, ok := asUint64(v.Value); ok && u > 0 {
			alignment = u
		}
	}

	return &File{
		Path:       path,
		Header:     Header{Version: version, TensorCount: tensorCount, KVCount: kvCount},
		KV:         kv,
		Tensors:    tensors,
		Alignment:  alignment,
		DataOffset: align(uint64(dec.off), alignment),
		Data:       data,
	}, nil
}

// Close releases the mmap, if any.
func (f *File) Close() error {
	if f.Data != nil {
		data := f.Data
		f.Data = nil
		return unix.Munmap(data)
	}
	return nil
}

type decoder struct {
	r    *bufio.Reader
	off  int64
	size int64
}

func newDecoder(rd io.Reader, size int64) *decoder {
	return &decoder{r: bufio.NewReader(rd), size: size}
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	if d.size > 0 && d.off+int64(n) > d.size {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	d.off += int64(n)
	return buf, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) str() (string, error) {
	n, err := d.u64()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if d.size > 0 && n > uint64(d.size) {
		return "", fmt.Errorf("string length too large: %d", n)
	}
	b, err := d.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readValue(d *decoder, vtype ValueType) (any, error) {
	switch vtype {
	case TypeUint8:
		return d.u8()
	case TypeInt8:
		v, err := d.u8()
		return int8(v), err
	case TypeUint16:
		return d.u16()
	case TypeInt16:
		v, err := d.u16()
		return int16(v), err
	case TypeUint32:
		return d.u32()
	case TypeInt32:
		v, err := d.u32()
		return int32(v), err
	case TypeUint64:
		return d.u64()
	case TypeInt64:
		v, err := d.u64()
		return int64(v), err
	case TypeFloat32:
		v, err := d.u32()
		return math.Float32frombits(v), err
	case TypeFloat64:
		v, err := d.u64()
		return math.Float64frombits(v), err
	case TypeBool:
		v, err := d.u8()
		if err != nil {
			return false, err
		}
		return v != 0, nil
	case TypeString:
		return d.str()
	case TypeArray:
		et, err := d.u32()
		if err != nil {
			return nil, err
		}
		count, err := d.u64()
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, count)
		for i := uint64(0); i < count; i++ {
			v, err := readValue(d, ValueType(et))
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: ValueType(et), Values: values}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %d", uint32(vtype))
	}
}

func align(offset, alignment uint64) uint64 {
	if alignment == 0 {
		return offset
	}
	if rem := offset % alignment; rem != 0 {
		return offset + (alignment - rem)
	}
	return offset
}

func asUint64(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int8:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int16:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int32:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	default:
		return 0, false
	}
}
