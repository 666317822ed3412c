// Package virtual is an in-process transport implementation primarily
// used for testing. It simulates a fully configured segment whose
// slaves boot straight to OP, with hooks to inject input patterns,
// AL state changes and receive faults.
package virtual

import (
	"sync"
	"time"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/internal/sim"
	"github.com/fieldforge/goecat/pkg/mapping"
	log "github.com/sirupsen/logrus"
)

// Transport implements [goecat.Transport] against a [sim.Bus].
// Configure must be called before the first Receive.
type Transport struct {
	mu          sync.Mutex
	bus         *sim.Bus
	failReceive int
	onReceive   func(bus *sim.Bus)
	receives    uint64
	sends       uint64
	closed      bool
}

func NewTransport() *Transport {
	return &Transport{}
}

// Configure builds the mapping table for the given slaves and brings
// up the simulated segment
func (tr *Transport) Configure(slaves []mapping.SlaveDescription) (*mapping.Table, error) {
	table, err := mapping.Build(slaves)
	if err != nil {
		return nil, err
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.bus = sim.NewBus(table)
	log.Debugf("[VIRTUAL] segment up | %v slaves", len(slaves))
	return table, nil
}

// Bus exposes the simulated segment for test manipulation
func (tr *Transport) Bus() *sim.Bus {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.bus
}

// FailNextReceives makes the next n Receive calls time out
func (tr *Transport) FailNextReceives(n int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.failReceive = n
}

// OnReceive installs a hook invoked before each frame is assembled,
// useful to drive per-cycle input patterns
func (tr *Transport) OnReceive(hook func(bus *sim.Bus)) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.onReceive = hook
}

func (tr *Transport) Receive(timeout time.Duration) (*goecat.Frame, error) {
	tr.mu.Lock()
	if tr.closed || tr.bus == nil {
		tr.mu.Unlock()
		return nil, goecat.ErrTransport
	}
	if tr.failReceive > 0 {
		tr.failReceive--
		tr.mu.Unlock()
		return nil, goecat.ErrExchangeTimeout
	}
	tr.receives++
	bus := tr.bus
	hook := tr.onReceive
	tr.mu.Unlock()

	if hook != nil {
		hook(bus)
	}
	return bus.Frame(), nil
}

func (tr *Transport) Send(outputs []byte) error {
	tr.mu.Lock()
	if tr.closed || tr.bus == nil {
		tr.mu.Unlock()
		return goecat.ErrTransport
	}
	tr.sends++
	bus := tr.bus
	tr.mu.Unlock()

	bus.Latch(outputs)
	return nil
}

func (tr *Transport) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.closed = true
	return nil
}

// Receives returns how many frames were delivered
func (tr *Transport) Receives() uint64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.receives
}

// Sends returns how many output areas were latched
func (tr *Transport) Sends() uint64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.sends
}
