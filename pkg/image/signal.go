package image

import "errors"

var (
	ErrOutOfBounds        = errors.New("descriptor byte range exceeds buffer length")
	ErrTypeMismatch       = errors.New("value type does not match descriptor type")
	ErrDuplicateName      = errors.New("signal name already registered")
	ErrUnknownSignal      = errors.New("signal name not registered")
	ErrDirectionViolation = errors.New("access against signal direction")
)

// Direction of a signal relative to the master : inputs travel from
// the slaves to the master, outputs from the master to the slaves.
type Direction uint8

const (
	DirInput Direction = iota
	DirOutput
)

func (d Direction) String() string {
	if d == DirInput {
		return "input"
	}
	return "output"
}

// A Signal describes one named value packed inside the process data
// image. BitOffset is only meaningful for BOOLEAN signals and must be
// in range 0..7, all other types are byte aligned.
type Signal struct {
	Name       string
	ByteOffset uint32
	BitOffset  uint8
	Type       DataType
	Dir        Direction
}

// fits reports whether the signal byte range lies inside a buffer of
// the given length
func (sig Signal) fits(length int) bool {
	end := uint64(sig.ByteOffset) + uint64(sig.Type.Size())
	return end <= uint64(length)
}
