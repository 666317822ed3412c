// Package sim holds the simulated process memory of one EtherCAT
// segment, used by the virtual transport for tests and demos.
package sim

import (
	"sync"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/pkg/image"
	"github.com/fieldforge/goecat/pkg/mapping"
)

// Bus is the slave-side view of the segment : the input area the
// slaves produce, the output area last latched by the master and the
// AL state of every slave.
type Bus struct {
	mu      sync.Mutex
	table   *mapping.Table
	inputs  []byte
	outputs []byte
	states  []goecat.ALState
	wkc     uint16
}

func NewBus(table *mapping.Table) *Bus {
	bus := &Bus{
		table:   table,
		inputs:  make([]byte, table.InputSize()),
		outputs: make([]byte, table.OutputSize()),
		states:  make([]goecat.ALState, len(table.Slaves())),
		wkc:     table.ExpectedWorkingCounter(),
	}
	// simulated slaves boot straight to OP
	for i := range bus.states {
		bus.states[i] = goecat.ALStateOp
	}
	return bus
}

// SetALState forces the AL state of the slave at the given position
func (bus *Bus) SetALState(position uint16, state goecat.ALState) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, slave := range bus.table.Slaves() {
		if slave.Position == position {
			bus.states[i] = state
			return
		}
	}
}

// SetWorkingCounter overrides the working counter reported with each
// frame, e.g. to simulate a missing slave
func (bus *Bus) SetWorkingCounter(wkc uint16) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.wkc = wkc
}

// WriteInput sets a slave-produced input value by PDO address
func (bus *Bus) WriteInput(position uint16, pdoIndex uint16, subIndex uint8, value any) error {
	sig, err := bus.table.Resolve(position, pdoIndex, subIndex)
	if err != nil {
		return err
	}
	if sig.Dir != image.DirInput {
		return image.ErrDirectionViolation
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return image.Write(bus.inputs, sig, value)
}

// ReadOutput reads back the last latched output value by PDO address
func (bus *Bus) ReadOutput(position uint16, pdoIndex uint16, subIndex uint8) (any, error) {
	sig, err := bus.table.Resolve(position, pdoIndex, subIndex)
	if err != nil {
		return nil, err
	}
	if sig.Dir != image.DirOutput {
		return nil, image.ErrDirectionViolation
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return image.Read(bus.outputs, sig)
}

// Frame assembles the receive frame for the current cycle
func (bus *Bus) Frame() *goecat.Frame {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	frame := goecat.NewFrame(uint32(len(bus.inputs)), len(bus.states))
	copy(frame.Inputs, bus.inputs)
	copy(frame.SlaveStates, bus.states)
	frame.WorkingCounter = bus.wkc
	return frame
}

// Latch stores the output area sent by the master
func (bus *Bus) Latch(outputs []byte) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	copy(bus.outputs, outputs)
}

// Outputs returns a copy of the last latched output area
func (bus *Bus) Outputs() []byte {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	outputs := make([]byte, len(bus.outputs))
	copy(outputs, bus.outputs)
	return outputs
}
