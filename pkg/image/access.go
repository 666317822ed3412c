package image

import (
	"encoding/binary"
	"math"
)

// Read extracts the value described by sig from buf. The returned
// value carries the exact Go type matching the descriptor
// (bool, uint8 ... uint64, int8 ... int64, float32, float64).
// Multi-byte types are read little-endian.
func Read(buf []byte, sig Signal) (any, error) {
	if !sig.fits(len(buf)) {
		return nil, ErrOutOfBounds
	}
	data := buf[sig.ByteOffset:]
	switch sig.Type {
	case BOOLEAN:
		if sig.BitOffset > 7 {
			return nil, ErrOutOfBounds
		}
		return data[0]&(1<<sig.BitOffset) != 0, nil
	case UNSIGNED8:
		return data[0], nil
	case INTEGER8:
		return int8(data[0]), nil
	case UNSIGNED16:
		return binary.LittleEndian.Uint16(data), nil
	case INTEGER16:
		return int16(binary.LittleEndian.Uint16(data)), nil
	case UNSIGNED32:
		return binary.LittleEndian.Uint32(data), nil
	case INTEGER32:
		return int32(binary.LittleEndian.Uint32(data)), nil
	case UNSIGNED64:
		return binary.LittleEndian.Uint64(data), nil
	case INTEGER64:
		return int64(binary.LittleEndian.Uint64(data)), nil
	case REAL32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
	case REAL64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	default:
		return nil, ErrTypeMismatch
	}
}

// Write stores value at the location described by sig, mutating buf in
// place. The concrete type of value must match the descriptor type
// exactly, otherwise ErrTypeMismatch is returned. Writing a BOOLEAN
// sets or clears only the indicated bit, sibling bits in the same byte
// are left untouched. No allocation takes place.
func Write(buf []byte, sig Signal, value any) error {
	if !sig.fits(len(buf)) {
		return ErrOutOfBounds
	}
	data := buf[sig.ByteOffset:]
	switch val := value.(type) {
	case bool:
		if sig.Type != BOOLEAN {
			return ErrTypeMismatch
		}
		if sig.BitOffset > 7 {
			return ErrOutOfBounds
		}
		if val {
			data[0] |= 1 << sig.BitOffset
		} else {
			data[0] &^= 1 << sig.BitOffset
		}
	case uint8:
		if sig.Type != UNSIGNED8 {
			return ErrTypeMismatch
		}
		data[0] = val
	case int8:
		if sig.Type != INTEGER8 {
			return ErrTypeMismatch
		}
		data[0] = byte(val)
	case uint16:
		if sig.Type != UNSIGNED16 {
			return ErrTypeMismatch
		}
		binary.LittleEndian.PutUint16(data, val)
	case int16:
		if sig.Type != INTEGER16 {
			return ErrTypeMismatch
		}
		binary.LittleEndian.PutUint16(data, uint16(val))
	case uint32:
		if sig.Type != UNSIGNED32 {
			return ErrTypeMismatch
		}
		binary.LittleEndian.PutUint32(data, val)
	case int32:
		if sig.Type != INTEGER32 {
			return ErrTypeMismatch
		}
		binary.LittleEndian.PutUint32(data, uint32(val))
	case uint64:
		if sig.Type != UNSIGNED64 {
			return ErrTypeMismatch
		}
		binary.LittleEndian.PutUint64(data, val)
	case int64:
		if sig.Type != INTEGER64 {
			return ErrTypeMismatch
		}
		binary.LittleEndian.PutUint64(data, uint64(val))
	case float32:
		if sig.Type != REAL32 {
			return ErrTypeMismatch
		}
		binary.LittleEndian.PutUint32(data, math.Float32bits(val))
	case float64:
		if sig.Type != REAL64 {
			return ErrTypeMismatch
		}
		binary.LittleEndian.PutUint64(data, math.Float64bits(val))
	default:
		return ErrTypeMismatch
	}
	return nil
}
