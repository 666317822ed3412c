// Package master tracks the operational state of the EtherCAT master
// and the per-slave status records refreshed by the cyclic loop.
package master

import (
	"fmt"
	"sync"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/pkg/mapping"
	log "github.com/sirupsen/logrus"
)

// Possible master states
type State uint8

const (
	StateInit State = iota
	StatePreOperational
	StateSafeOperational
	StateOperational
	StateError
)

var stateMap = map[State]string{
	StateInit:            "INIT",
	StatePreOperational:  "PRE-OPERATIONAL",
	StateSafeOperational: "SAFE-OPERATIONAL",
	StateOperational:     "OPERATIONAL",
	StateError:           "ERROR",
}

func (s State) String() string {
	desc, ok := stateMap[s]
	if !ok {
		return "UNKNOWN"
	}
	return desc
}

// SlaveStatus is the per-slave record refreshed every cycle from the
// received frame's AL state flags
type SlaveStatus struct {
	Position    uint16
	Name        string
	Required    bool
	Operational bool
	ALState     goecat.ALState
	ErrorFlag   bool
}

const (
	DefaultGateCycles     uint32 = 1000
	DefaultFaultThreshold uint32 = 3
)

type Config struct {
	// Number of cycles a startup gate may stay unmet before the
	// master escalates to ERROR instead of looping indefinitely
	GateCycles uint32
	// Consecutive exchange faults tolerated in OPERATIONAL before
	// the debounce escalates to ERROR
	FaultThreshold uint32
}

// Master is the process-wide state machine driven by the cyclic
// exchange loop. It is an explicit owned object passed into the loop
// and application, multiple independent instances can coexist in
// tests. All methods are safe for concurrent use, monitoring code may
// read state while the loop advances it.
type Master struct {
	mu             sync.Mutex
	state          State
	slaves         []SlaveStatus
	gateCycles     uint32
	faultThreshold uint32
	gateCounter    uint32
	consecFaults   uint32
	lastFault      error
	callback       func(old State, new State)
}

func NewMaster(cfg Config, slaves []mapping.SlaveDescription) *Master {
	if cfg.GateCycles == 0 {
		cfg.GateCycles = DefaultGateCycles
	}
	if cfg.FaultThreshold == 0 {
		cfg.FaultThreshold = DefaultFaultThreshold
	}
	mst := &Master{
		state:          StateInit,
		gateCycles:     cfg.GateCycles,
		faultThreshold: cfg.FaultThreshold,
	}
	for _, slave := range slaves {
		mst.slaves = append(mst.slaves, SlaveStatus{
			Position: slave.Position,
			Name:     slave.Name,
			Required: slave.Required,
			ALState:  goecat.ALStateInit,
		})
	}
	return mst
}

// OnStateChange registers a callback invoked on every transition,
// with the mutex released
func (mst *Master) OnStateChange(callback func(old State, new State)) {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	mst.callback = callback
}

func (mst *Master) setState(next State) {
	if mst.state == next {
		return
	}
	prev := mst.state
	mst.state = next
	mst.gateCounter = 0
	log.Debugf("[MASTER] state changed | %v ==> %v", prev, next)
	if mst.callback != nil {
		callback := mst.callback
		mst.mu.Unlock()
		callback(prev, next)
		mst.mu.Lock()
	}
}

// ConfigurationDone signals that external slave discovery and SDO
// configuration completed. Only valid in INIT.
func (mst *Master) ConfigurationDone() error {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	if mst.state != StateInit {
		return goecat.ErrWrongState
	}
	mst.setState(StatePreOperational)
	return nil
}

// RefreshSlaveStatus updates the per-slave records from the AL states
// of the last received frame, in position order
func (mst *Master) RefreshSlaveStatus(states []goecat.ALState) {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	for i := range mst.slaves {
		if i >= len(states) {
			break
		}
		st := states[i]
		prev := mst.slaves[i].ALState
		mst.slaves[i].ALState = st
		mst.slaves[i].Operational = st.Base() == goecat.ALStateOp
		mst.slaves[i].ErrorFlag = st.HasError()
		if prev != st {
			log.Debugf("[MASTER] slave %v state changed | %v ==> %v",
				mst.slaves[i].Position, prev, st)
		}
	}
}

// gateMet reports whether all required slaves are operational with no
// error flag, caller holds the mutex
func (mst *Master) gateMet() bool {
	for _, slave := range mst.slaves {
		if !slave.Required {
			continue
		}
		if !slave.Operational || slave.ErrorFlag {
			return false
		}
	}
	return true
}

// ReportExchange feeds the result of one cyclic exchange into the
// debounce counters. A nil error resets the consecutive failure count.
func (mst *Master) ReportExchange(err error) {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	if err == nil {
		mst.consecFaults = 0
		return
	}
	mst.consecFaults++
	mst.lastFault = err
	log.Debugf("[MASTER] exchange fault %v/%v : %v",
		mst.consecFaults, mst.faultThreshold, err)
}

// Advance drives the state machine one cycle forward. Startup gates
// (PRE-OPERATIONAL to SAFE-OPERATIONAL to OPERATIONAL) require all
// required slaves operational without error flags, failure to meet a
// gate within the configured cycle count escalates to ERROR. In
// OPERATIONAL, consecutive exchange faults beyond the threshold
// escalate to ERROR exactly once. ERROR is only left via Reset.
func (mst *Master) Advance() {
	mst.mu.Lock()
	defer mst.mu.Unlock()

	switch mst.state {
	case StateInit, StateError:
		// nothing to drive, INIT waits for ConfigurationDone and
		// ERROR for an explicit reset

	case StatePreOperational:
		mst.advanceGate(StateSafeOperational)

	case StateSafeOperational:
		mst.advanceGate(StateOperational)

	case StateOperational:
		if mst.consecFaults > mst.faultThreshold {
			mst.lastFault = fmt.Errorf("%w after %v consecutive faults",
				mst.lastFault, mst.consecFaults)
			log.Warnf("[MASTER] communication fault threshold exceeded : %v", mst.lastFault)
			mst.setState(StateError)
		}
	}
}

func (mst *Master) advanceGate(next State) {
	if mst.gateMet() {
		mst.setState(next)
		return
	}
	mst.gateCounter++
	if mst.gateCounter > mst.gateCycles {
		mst.lastFault = fmt.Errorf("startup gate to %v not met within %v cycles",
			next, mst.gateCycles)
		log.Warnf("[MASTER] %v", mst.lastFault)
		mst.setState(StateError)
	}
}

// Reset is the only exit from ERROR, back to INIT. There is no
// automatic recovery : resuming after an undiagnosed fault risks
// commanding actuators with stale output values.
func (mst *Master) Reset() error {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	if mst.state != StateError {
		return goecat.ErrWrongState
	}
	mst.lastFault = nil
	mst.consecFaults = 0
	mst.setState(StateInit)
	return nil
}

func (mst *Master) State() State {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	return mst.state
}

// LastFault returns the reason for the last escalation to ERROR,
// nil when none occurred since the last reset
func (mst *Master) LastFault() error {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	return mst.lastFault
}

// Slaves returns a copy of the current status records for monitoring
func (mst *Master) Slaves() []SlaveStatus {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	slaves := make([]SlaveStatus, len(mst.slaves))
	copy(slaves, mst.slaves)
	return slaves
}

func (mst *Master) ConsecutiveFaults() uint32 {
	mst.mu.Lock()
	defer mst.mu.Unlock()
	return mst.consecFaults
}
