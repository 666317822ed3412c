package virtual

import (
	"testing"
	"time"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/pkg/image"
	"github.com/fieldforge/goecat/pkg/mapping"
	"github.com/stretchr/testify/assert"
)

func testSlaves() []mapping.SlaveDescription {
	return []mapping.SlaveDescription{
		{
			Position: 0, Name: "io", Required: true,
			Pdos: []mapping.PdoEntry{
				{PdoIndex: 0x6000, SubIndex: 1, Name: "button", Type: image.BOOLEAN, Dir: image.DirInput},
				{PdoIndex: 0x7000, SubIndex: 1, Name: "counter", Type: image.UNSIGNED16, Dir: image.DirOutput},
			},
		},
	}
}

func TestConfigureAndExchange(t *testing.T) {
	tr := NewTransport()
	table, err := tr.Configure(testSlaves())
	assert.Nil(t, err)
	assert.EqualValues(t, 1, table.InputSize())
	assert.EqualValues(t, 2, table.OutputSize())

	err = tr.Bus().WriteInput(0, 0x6000, 1, true)
	assert.Nil(t, err)

	frame, err := tr.Receive(time.Millisecond)
	assert.Nil(t, err)
	assert.EqualValues(t, 0x01, frame.Inputs[0])
	assert.Equal(t, goecat.ALStateOp, frame.SlaveStates[0])
	assert.Equal(t, table.ExpectedWorkingCounter(), frame.WorkingCounter)

	err = tr.Send([]byte{0x34, 0x12})
	assert.Nil(t, err)
	v, err := tr.Bus().ReadOutput(0, 0x7000, 1)
	assert.Nil(t, err)
	assert.EqualValues(t, uint16(0x1234), v)

	assert.EqualValues(t, 1, tr.Receives())
	assert.EqualValues(t, 1, tr.Sends())
}

func TestFailNextReceives(t *testing.T) {
	tr := NewTransport()
	_, err := tr.Configure(testSlaves())
	assert.Nil(t, err)

	tr.FailNextReceives(2)
	_, err = tr.Receive(time.Millisecond)
	assert.Equal(t, goecat.ErrExchangeTimeout, err)
	_, err = tr.Receive(time.Millisecond)
	assert.Equal(t, goecat.ErrExchangeTimeout, err)
	_, err = tr.Receive(time.Millisecond)
	assert.Nil(t, err)
}

func TestSlaveStateInjection(t *testing.T) {
	tr := NewTransport()
	_, err := tr.Configure(testSlaves())
	assert.Nil(t, err)

	tr.Bus().SetALState(0, goecat.ALStateSafeOp|goecat.ALStateErrorFlag)
	frame, err := tr.Receive(time.Millisecond)
	assert.Nil(t, err)
	assert.True(t, frame.SlaveStates[0].HasError())
	assert.Equal(t, goecat.ALStateSafeOp, frame.SlaveStates[0].Base())
}

func TestClosedTransport(t *testing.T) {
	tr := NewTransport()
	_, err := tr.Configure(testSlaves())
	assert.Nil(t, err)
	assert.Nil(t, tr.Close())

	_, err = tr.Receive(time.Millisecond)
	assert.Equal(t, goecat.ErrTransport, err)
	assert.Equal(t, goecat.ErrTransport, tr.Send(nil))
}
