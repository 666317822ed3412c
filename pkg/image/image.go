package image

import (
	log "github.com/sirupsen/logrus"
)

// Image owns the raw process data of one EtherCAT domain : one input
// buffer refreshed by the cyclic receive and one output buffer sent to
// the slaves each cycle. A registry maps symbolic signal names to
// their packed location. Buffer sizes are fixed at creation, the image
// is never resized once the cyclic loop runs.
//
// Access discipline is phase based and enforced by the loop call
// sequence, not by a lock : the loop owns the input buffer during
// receive and the output buffer during send, application code may
// read and write through Get/Set only in between.
type Image struct {
	inputs  []byte
	outputs []byte
	signals map[string]Signal
}

func NewImage(inputSize uint32, outputSize uint32) *Image {
	return &Image{
		inputs:  make([]byte, inputSize),
		outputs: make([]byte, outputSize),
		signals: make(map[string]Signal),
	}
}

// buffer selects the byte area matching the signal direction
func (img *Image) buffer(dir Direction) []byte {
	if dir == DirInput {
		return img.inputs
	}
	return img.outputs
}

// Register adds a named signal to the image. The descriptor must fit
// inside the buffer of its direction.
func (img *Image) Register(sig Signal) error {
	if _, exists := img.signals[sig.Name]; exists {
		return ErrDuplicateName
	}
	if !sig.fits(len(img.buffer(sig.Dir))) {
		return ErrOutOfBounds
	}
	img.signals[sig.Name] = sig
	log.Debugf("[IMAGE] registered %v signal %v | offset %v bit %v type %v",
		sig.Dir, sig.Name, sig.ByteOffset, sig.BitOffset, sig.Type)
	return nil
}

// Get reads the current value of a named input signal. Reading an
// output signal is rejected : outputs are owned by the application and
// should be tracked there, reading them back usually hides a mapping
// mistake.
func (img *Image) Get(name string) (any, error) {
	sig, ok := img.signals[name]
	if !ok {
		return nil, ErrUnknownSignal
	}
	if sig.Dir != DirInput {
		return nil, ErrDirectionViolation
	}
	return Read(img.inputs, sig)
}

// Set writes a named output signal. Writing an input signal is
// rejected, the value would be silently overwritten by the next
// receive and is almost certainly a programming error.
func (img *Image) Set(name string, value any) error {
	sig, ok := img.signals[name]
	if !ok {
		return ErrUnknownSignal
	}
	if sig.Dir != DirOutput {
		return ErrDirectionViolation
	}
	return Write(img.outputs, sig, value)
}

// Lookup returns the registered descriptor for a name
func (img *Image) Lookup(name string) (Signal, error) {
	sig, ok := img.signals[name]
	if !ok {
		return Signal{}, ErrUnknownSignal
	}
	return sig, nil
}

// Inputs exposes the raw input buffer. Borrowed by the cyclic loop
// during the receive phase, application code should use Get instead.
func (img *Image) Inputs() []byte {
	return img.inputs
}

// Outputs exposes the raw output buffer. Borrowed by the cyclic loop
// during the send phase.
func (img *Image) Outputs() []byte {
	return img.outputs
}

// Snapshot returns copies of both buffers for diagnostics and tests.
// The cyclic loop is never blocked by a snapshot.
func (img *Image) Snapshot() (inputs []byte, outputs []byte) {
	inputs = make([]byte, len(img.inputs))
	outputs = make([]byte, len(img.outputs))
	copy(inputs, img.inputs)
	copy(outputs, img.outputs)
	return inputs, outputs
}

func (img *Image) GetBool(name string) (bool, error) {
	v, err := img.Get(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, ErrTypeMismatch
	}
	return b, nil
}

func (img *Image) GetUint8(name string) (uint8, error) {
	v, err := img.Get(name)
	if err != nil {
		return 0, err
	}
	b, ok := v.(uint8)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return b, nil
}

func (img *Image) GetUint16(name string) (uint16, error) {
	v, err := img.Get(name)
	if err != nil {
		return 0, err
	}
	b, ok := v.(uint16)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return b, nil
}

func (img *Image) GetUint32(name string) (uint32, error) {
	v, err := img.Get(name)
	if err != nil {
		return 0, err
	}
	b, ok := v.(uint32)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return b, nil
}

func (img *Image) GetUint64(name string) (uint64, error) {
	v, err := img.Get(name)
	if err != nil {
		return 0, err
	}
	b, ok := v.(uint64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return b, nil
}

func (img *Image) GetInt16(name string) (int16, error) {
	v, err := img.Get(name)
	if err != nil {
		return 0, err
	}
	b, ok := v.(int16)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return b, nil
}

func (img *Image) GetInt32(name string) (int32, error) {
	v, err := img.Get(name)
	if err != nil {
		return 0, err
	}
	b, ok := v.(int32)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return b, nil
}

func (img *Image) GetFloat32(name string) (float32, error) {
	v, err := img.Get(name)
	if err != nil {
		return 0, err
	}
	b, ok := v.(float32)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return b, nil
}

func (img *Image) GetFloat64(name string) (float64, error) {
	v, err := img.Get(name)
	if err != nil {
		return 0, err
	}
	b, ok := v.(float64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return b, nil
}
