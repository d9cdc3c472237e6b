package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PackFloat32 encodes f so that lexicographic byte order of the result
// equals numeric order: the sign bit is flipped for non-negative values,
// and all bits are flipped for negative values.
func PackFloat32(f float32) []byte {
	bits := math.Float32bits(f)
	if f >= 0 {
		bits ^= 0x80000000
	} else {
		bits = ^bits
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, bits)
	return buf
}

// UnpackFloat32 inverts PackFloat32. b must be exactly 4 bytes.
func UnpackFloat32(b []byte) (float32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("bytecode: float32 operand must be 4 bytes, got %d", len(b))
	}
	bits := binary.BigEndian.Uint32(b)
	if bits&0x80000000 != 0 {
		bits ^= 0x80000000
	} else {
		bits = ^bits
	}
	return math.Float32frombits(bits), nil
}

// PackFloat64 is the float64 analog of PackFloat32.
func PackFloat64(f float64) []byte {
	bits := math.Float64bits(f)
	if f >= 0 {
		bits ^= 0x8000000000000000
	} else {
		bits = ^bits
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

// UnpackFloat64 inverts PackFloat64. b must be exactly 8 bytes.
func UnpackFloat64(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("bytecode: float64 operand must be 8 bytes, got %d", len(b))
	}
	bits := binary.BigEndian.Uint64(b)
	if bits&0x8000000000000000 != 0 {
		bits ^= 0x8000000000000000
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}
