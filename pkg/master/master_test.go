package master

import (
	"testing"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/pkg/mapping"
	"github.com/stretchr/testify/assert"
)

func testMaster(cfg Config) *Master {
	return NewMaster(cfg, []mapping.SlaveDescription{
		{Position: 0, Name: "coupler", Required: true},
		{Position: 1, Name: "drive", Required: true},
		{Position: 2, Name: "optional", Required: false},
	})
}

func allOp() []goecat.ALState {
	return []goecat.ALState{goecat.ALStateOp, goecat.ALStateOp, goecat.ALStateOp}
}

func TestStartupSequence(t *testing.T) {
	mst := testMaster(Config{})
	assert.Equal(t, StateInit, mst.State())

	// Advance does nothing before configuration completes
	mst.Advance()
	assert.Equal(t, StateInit, mst.State())

	err := mst.ConfigurationDone()
	assert.Nil(t, err)
	assert.Equal(t, StatePreOperational, mst.State())

	// second signal is a state error
	err = mst.ConfigurationDone()
	assert.Equal(t, goecat.ErrWrongState, err)

	mst.RefreshSlaveStatus(allOp())
	mst.Advance()
	assert.Equal(t, StateSafeOperational, mst.State())
	mst.Advance()
	assert.Equal(t, StateOperational, mst.State())
}

func TestOperationalGateInvariant(t *testing.T) {
	mst := testMaster(Config{GateCycles: 100})
	assert.Nil(t, mst.ConfigurationDone())

	// a required slave not operational keeps every gate closed
	states := allOp()
	states[1] = goecat.ALStateSafeOp
	for i := 0; i < 50; i++ {
		mst.RefreshSlaveStatus(states)
		mst.Advance()
		assert.NotEqual(t, StateOperational, mst.State())
	}

	// error flag on a required slave also closes the gate
	states = allOp()
	states[0] = goecat.ALStateOp | goecat.ALStateErrorFlag
	mst.RefreshSlaveStatus(states)
	mst.Advance()
	assert.Equal(t, StatePreOperational, mst.State())

	// an optional slave does not gate
	states = allOp()
	states[2] = goecat.ALStateInit
	mst.RefreshSlaveStatus(states)
	mst.Advance()
	mst.Advance()
	assert.Equal(t, StateOperational, mst.State())
}

func TestGateTimeout(t *testing.T) {
	mst := testMaster(Config{GateCycles: 10})
	assert.Nil(t, mst.ConfigurationDone())

	states := allOp()
	states[0] = goecat.ALStatePreOp
	for i := 0; i < 10; i++ {
		mst.RefreshSlaveStatus(states)
		mst.Advance()
		assert.Equal(t, StatePreOperational, mst.State())
	}
	mst.Advance()
	assert.Equal(t, StateError, mst.State())
	assert.NotNil(t, mst.LastFault())
}

func TestFaultDebounce(t *testing.T) {
	mst := testMaster(Config{FaultThreshold: 3})
	assert.Nil(t, mst.ConfigurationDone())
	mst.RefreshSlaveStatus(allOp())
	mst.Advance()
	mst.Advance()
	assert.Equal(t, StateOperational, mst.State())

	transitions := 0
	mst.OnStateChange(func(old State, new State) {
		if new == StateError {
			transitions++
		}
	})

	// faults below the threshold do not escalate
	for i := 0; i < 3; i++ {
		mst.ReportExchange(goecat.ErrExchangeTimeout)
		mst.Advance()
		assert.Equal(t, StateOperational, mst.State())
	}

	// a good exchange resets the debounce
	mst.ReportExchange(nil)
	assert.EqualValues(t, 0, mst.ConsecutiveFaults())
	for i := 0; i < 3; i++ {
		mst.ReportExchange(goecat.ErrExchangeTimeout)
		mst.Advance()
		assert.Equal(t, StateOperational, mst.State())
	}

	// crossing the threshold escalates exactly once, no flapping
	for i := 0; i < 10; i++ {
		mst.ReportExchange(goecat.ErrExchangeTimeout)
		mst.Advance()
		assert.Equal(t, StateError, mst.State())
	}
	assert.Equal(t, 1, transitions)
}

func TestResetFromError(t *testing.T) {
	mst := testMaster(Config{FaultThreshold: 1})

	// reset outside of ERROR is rejected
	assert.Equal(t, goecat.ErrWrongState, mst.Reset())

	assert.Nil(t, mst.ConfigurationDone())
	mst.RefreshSlaveStatus(allOp())
	mst.Advance()
	mst.Advance()
	for i := 0; i < 3; i++ {
		mst.ReportExchange(goecat.ErrTransport)
		mst.Advance()
	}
	assert.Equal(t, StateError, mst.State())

	// ERROR is stable without reset
	mst.RefreshSlaveStatus(allOp())
	mst.Advance()
	assert.Equal(t, StateError, mst.State())

	assert.Nil(t, mst.Reset())
	assert.Equal(t, StateInit, mst.State())
	assert.Nil(t, mst.LastFault())
}

func TestSlaveStatusRefresh(t *testing.T) {
	mst := testMaster(Config{})
	states := []goecat.ALState{
		goecat.ALStateOp,
		goecat.ALStateSafeOp | goecat.ALStateErrorFlag,
		goecat.ALStateInit,
	}
	mst.RefreshSlaveStatus(states)

	slaves := mst.Slaves()
	assert.True(t, slaves[0].Operational)
	assert.False(t, slaves[0].ErrorFlag)
	assert.False(t, slaves[1].Operational)
	assert.True(t, slaves[1].ErrorFlag)
	assert.Equal(t, goecat.ALStateInit, slaves[2].ALState)
}
