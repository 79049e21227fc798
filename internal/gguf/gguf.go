// Package gguf reads GGUF model containers: the header, the metadata
// key/value table, the tensor directory, and the tensor data itself.
// Tensor data is accessed through a read-only mmap of the file when the
// platform allows it, with a plain pread fallback otherwise.
package gguf

import (
	"errors"
	"fmt"
)

const magicGGUF = "GGUF"

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (t ValueType) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeUint64:
		return "u64"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// ArrayValue holds a homogeneous metadata array.
type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

type Value struct {
	Type  ValueType
	Value any
}

type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// TensorType enumerates the ggml element encodings protex understands.
// Values match the on-disk GGUF encoding.
type TensorType uint32

const (
	GGMLTypeF32  TensorType = 0
	GGMLTypeF16  TensorType = 1
	GGMLTypeQ8_0 TensorType = 8
	GGMLTypeQ4_K TensorType = 12
	GGMLTypeQ6_K TensorType = 14
	GGMLTypeF64  TensorType = 20
)

func (t TensorType) String() string {
	switch t {
	case GGMLTypeF32:
		return "F32"
	case GGMLTypeF16:
		return "F16"
	case GGMLTypeQ8_0:
		return "Q8_0"
	case GGMLTypeQ4_K:
		return "Q4_K"
	case GGMLTypeQ6_K:
		return "Q6_K"
	case GGMLTypeF64:
		return "F64"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

type TensorInfo struct {
	Name   string
	Dims   []uint64
	Type   TensorType
	Offset uint64
}

// File is a parsed GGUF container. KV holds the metadata table, Tensors
// the tensor directory. Data is the mmap of the whole file when mapping
// succeeded, nil otherwise.
type File struct {
	Path       string
	Header     Header
	KV         map[string]Value
	Tensors    []TensorInfo
	Alignment  uint64
	DataOffset uint64
	Data       []byte
}

// TensorByName returns the tensor directory entry for the given name.
func (f *File) TensorByName(name string) (TensorInfo, bool) {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorInfo{}, false
}

var ErrUnsupportedType = errors.New("unsupported tensor type")
