// Package mapping computes the process data image layout from static
// slave PDO descriptions. The layout is deterministic : a given slave
// configuration always produces the same offsets across runs.
package mapping

import (
	"errors"
	"fmt"

	"github.com/fieldforge/goecat/pkg/image"
	log "github.com/sirupsen/logrus"
)

var (
	ErrOverlappingRegion = errors.New("pdo entries overlap in the image")
	ErrUnknownPdo        = errors.New("pdo entry not found in mapping table")
)

// A PdoEntry is one process data object exchanged with a slave.
// Name must be unique across the whole bus, it becomes the symbolic
// signal name inside the image.
type PdoEntry struct {
	PdoIndex uint16
	SubIndex uint8
	Name     string
	Type     image.DataType
	Dir      image.Direction
}

// SlaveDescription is the static description of one slave on the bus,
// built once at configuration time from a device description file.
type SlaveDescription struct {
	Position    uint16
	VendorId    uint32
	ProductCode uint32
	Name        string
	Required    bool
	Pdos        []PdoEntry
}

type pdoKey struct {
	position uint16
	pdoIndex uint16
	subIndex uint8
}

// Table is the frozen mapping between slave PDO entries and signal
// descriptors inside the image. Once built it is immutable apart from
// explicit read aliases, any topology change requires a full rebuild
// and re-registration of all signals.
type Table struct {
	slaves      []SlaveDescription
	signals     []image.Signal
	byKey       map[pdoKey]int
	byName      map[string]int
	inputSize   uint32
	outputSize  uint32
	expectedWkc uint16
}

// cursor tracks the packing position for one direction. Booleans pack
// LSB first inside the current byte, any other type closes an open bit
// gap and aligns to the next byte boundary.
type cursor struct {
	byteOffset uint32
	bitOffset  uint8
}

func (c *cursor) place(t image.DataType) (byteOffset uint32, bitOffset uint8) {
	if t == image.BOOLEAN {
		byteOffset, bitOffset = c.byteOffset, c.bitOffset
		c.bitOffset++
		if c.bitOffset == 8 {
			c.bitOffset = 0
			c.byteOffset++
		}
		return byteOffset, bitOffset
	}
	if c.bitOffset != 0 {
		c.bitOffset = 0
		c.byteOffset++
	}
	byteOffset = c.byteOffset
	c.byteOffset += t.Size()
	return byteOffset, 0
}

func (c *cursor) size() uint32 {
	if c.bitOffset != 0 {
		return c.byteOffset + 1
	}
	return c.byteOffset
}

// Build computes a contiguous non-overlapping layout for all given
// slaves, in declaration order per direction. Duplicate
// (slave, pdo, subindex) keys and duplicate signal names abort the
// build, a silent partial mapping could command wrong actuators.
func Build(slaves []SlaveDescription) (*Table, error) {
	table := &Table{
		slaves: slaves,
		byKey:  make(map[pdoKey]int),
		byName: make(map[string]int),
	}
	var in, out cursor

	for _, slave := range slaves {
		hasInput, hasOutput := false, false
		for _, entry := range slave.Pdos {
			if entry.Type.Size() == 0 {
				return nil, fmt.Errorf("%w: slave %v entry %v has invalid type",
					image.ErrTypeMismatch, slave.Position, entry.Name)
			}
			key := pdoKey{slave.Position, entry.PdoIndex, entry.SubIndex}
			if _, exists := table.byKey[key]; exists {
				return nil, fmt.Errorf("%w: slave %v pdo x%x sub %v declared twice",
					ErrOverlappingRegion, slave.Position, entry.PdoIndex, entry.SubIndex)
			}
			if _, exists := table.byName[entry.Name]; exists {
				return nil, fmt.Errorf("%w: %v", image.ErrDuplicateName, entry.Name)
			}

			c := &in
			if entry.Dir == image.DirOutput {
				c = &out
				hasOutput = true
			} else {
				hasInput = true
			}
			byteOffset, bitOffset := c.place(entry.Type)
			sig := image.Signal{
				Name:       entry.Name,
				ByteOffset: byteOffset,
				BitOffset:  bitOffset,
				Type:       entry.Type,
				Dir:        entry.Dir,
			}
			table.byKey[key] = len(table.signals)
			table.byName[entry.Name] = len(table.signals)
			table.signals = append(table.signals, sig)
		}
		// LRW working counter convention : read increments by 1,
		// write by 2, a slave doing both contributes 3
		if hasInput {
			table.expectedWkc += 1
		}
		if hasOutput {
			table.expectedWkc += 2
		}
	}
	table.inputSize = in.size()
	table.outputSize = out.size()

	log.Debugf("[MAPPING] built table | %v slaves, %v signals, inputs %v bytes, outputs %v bytes, expected wkc %v",
		len(slaves), len(table.signals), table.inputSize, table.outputSize, table.expectedWkc)
	return table, nil
}

// Resolve returns the signal descriptor mapped for a slave PDO entry
func (table *Table) Resolve(position uint16, pdoIndex uint16, subIndex uint8) (image.Signal, error) {
	idx, ok := table.byKey[pdoKey{position, pdoIndex, subIndex}]
	if !ok {
		return image.Signal{}, fmt.Errorf("%w: slave %v pdo x%x sub %v",
			ErrUnknownPdo, position, pdoIndex, subIndex)
	}
	return table.signals[idx], nil
}

// Signals returns all descriptors in layout order
func (table *Table) Signals() []image.Signal {
	signals := make([]image.Signal, len(table.signals))
	copy(signals, table.signals)
	return signals
}

// Alias registers name as an additional read-only view over an
// existing input entry's bits. This is the only permitted form of
// aliasing, output entries may never share bits.
func (table *Table) Alias(name string, existing string) error {
	if _, exists := table.byName[name]; exists {
		return fmt.Errorf("%w: %v", image.ErrDuplicateName, name)
	}
	idx, ok := table.byName[existing]
	if !ok {
		return fmt.Errorf("%w: %v", image.ErrUnknownSignal, existing)
	}
	sig := table.signals[idx]
	if sig.Dir != image.DirInput {
		return fmt.Errorf("%w: cannot alias output %v", image.ErrDirectionViolation, existing)
	}
	sig.Name = name
	table.byName[name] = len(table.signals)
	table.signals = append(table.signals, sig)
	return nil
}

// RegisterAll registers every mapped signal into an image
func (table *Table) RegisterAll(img *image.Image) error {
	for _, sig := range table.signals {
		if err := img.Register(sig); err != nil {
			return fmt.Errorf("register %v: %w", sig.Name, err)
		}
	}
	return nil
}

// NewImage allocates an image matching the table layout with all
// signals registered
func (table *Table) NewImage() (*image.Image, error) {
	img := image.NewImage(table.inputSize, table.outputSize)
	if err := table.RegisterAll(img); err != nil {
		return nil, err
	}
	return img, nil
}

func (table *Table) InputSize() uint32 {
	return table.inputSize
}

func (table *Table) OutputSize() uint32 {
	return table.outputSize
}

// ExpectedWorkingCounter is the counter value of a fully processed
// cyclic frame
func (table *Table) ExpectedWorkingCounter() uint16 {
	return table.expectedWkc
}

func (table *Table) Slaves() []SlaveDescription {
	return table.slaves
}
