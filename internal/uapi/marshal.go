package uapi

import (
	"encoding/binary"
	"reflect"
	"unsafe"
)

// Marshal converts a wire struct to bytes using a fixed little-endian
// layout. Types with variable-length or union-like fields get a hand
// written encoder below; everything else falls through to directMarshal,
// a raw memory copy safe for any struct containing no pointers or slices.
func Marshal(v interface{}) []byte {
	switch val := v.(type) {
	case *RegReq:
		return marshalRegReq(val)
	case *RegResp:
		return marshalRegResp(val)
	default:
		return directMarshal(v)
	}
}

// Unmarshal converts bytes back into a wire struct.
func Unmarshal(data []byte, v interface{}) error {
	switch val := v.(type) {
	case *RegReq:
		return unmarshalRegReq(data, val)
	case *RegResp:
		return unmarshalRegResp(data, val)
	default:
		return directUnmarshal(data, v)
	}
}

func marshalRegReq(r *RegReq) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], r.Status)
	binary.LittleEndian.PutUint64(buf[8:16], r.AllocSize)
	return buf
}

func unmarshalRegReq(data []byte, r *RegReq) error {
	if len(data) < 16 {
		return ErrInsufficientData
	}
	r.Status = binary.LittleEndian.Uint32(data[0:4])
	r.AllocSize = binary.LittleEndian.Uint64(data[8:16])
	return nil
}

func marshalRegResp(r *RegResp) []byte {
	buf := make([]byte, MemNameLen+24)
	binary.LittleEndian.PutUint32(buf[0:4], r.Status)
	binary.LittleEndian.PutUint64(buf[8:16], r.BaseAddr)
	binary.LittleEndian.PutUint64(buf[16:24], r.AdjustedAllocSize)
	copy(buf[24:24+MemNameLen], r.MemName[:])
	return buf
}

func unmarshalRegResp(data []byte, r *RegResp) error {
	if len(data) < MemNameLen+24 {
		return ErrInsufficientData
	}
	r.Status = binary.LittleEndian.Uint32(data[0:4])
	r.BaseAddr = binary.LittleEndian.Uint64(data[8:16])
	r.AdjustedAllocSize = binary.LittleEndian.Uint64(data[16:24])
	copy(r.MemName[:], data[24:24+MemNameLen])
	return nil
}

// directMarshal performs a raw memory copy of a fixed-layout struct, used
// for every wire type above whose fields are all plain integers/byte
// arrays in declaration order with no union-like reinterpretation.
func directMarshal(v interface{}) []byte {
	ptr := reflect.ValueOf(v).Pointer()
	size := int(reflect.TypeOf(v).Elem().Size())

	buf := make([]byte, size)
	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
	copy(buf, src)
	return buf
}

// directUnmarshal performs a raw memory copy into a fixed-layout struct.
func directUnmarshal(data []byte, v interface{}) error {
	size := int(reflect.TypeOf(v).Elem().Size())
	if len(data) < size {
		return ErrInsufficientData
	}
	ptr := reflect.ValueOf(v).Pointer()
	dst := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
	copy(dst, data[:size])
	return nil
}

// MarshalError is the error type returned for every wire encode/decode
// failure in this package.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const (
	ErrInsufficientData MarshalError = "uapi: insufficient data for unmarshaling"
	ErrInvalidType      MarshalError = "uapi: invalid type for marshaling"
)
