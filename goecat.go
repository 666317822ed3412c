// Package goecat provides the building blocks for a soft real-time PLC
// exchanging cyclic process data with EtherCAT slaves through a master.
// The shared primitives live here, the actual components are found in
// the different pkg packages :
//   - [pkg/image] : process-data image & typed signal access
//   - [pkg/mapping] : slave PDO descriptions & image layout
//   - [pkg/master] : master state machine & slave status
//   - [pkg/plc] : the cyclic exchange loop
package goecat

// ALState is the application layer state reported by a slave.
// Values follow the EtherCAT state machine encoding, with bit 4
// flagging a local AL status error.
type ALState uint8

const (
	ALStateInit   ALState = 0x01
	ALStatePreOp  ALState = 0x02
	ALStateBoot   ALState = 0x03
	ALStateSafeOp ALState = 0x04
	ALStateOp     ALState = 0x08

	ALStateErrorFlag ALState = 0x10
)

var alStateMap = map[ALState]string{
	ALStateInit:   "INIT",
	ALStatePreOp:  "PRE-OP",
	ALStateBoot:   "BOOT",
	ALStateSafeOp: "SAFE-OP",
	ALStateOp:     "OP",
}

func (s ALState) String() string {
	desc, ok := alStateMap[s&^ALStateErrorFlag]
	if !ok {
		return "UNKNOWN"
	}
	if s.HasError() {
		return desc + "+ERROR"
	}
	return desc
}

// Operational state without the error flag bit
func (s ALState) Base() ALState {
	return s &^ ALStateErrorFlag
}

func (s ALState) HasError() bool {
	return s&ALStateErrorFlag != 0
}

// A Frame is the result of one cyclic receive round trip with the
// master transport. Inputs holds the full input area of the process
// data image, SlaveStates the AL state of each configured slave in
// position order. The working counter is incremented by every slave
// that processed the datagram and is used to detect missing slaves.
type Frame struct {
	Inputs         []byte
	SlaveStates    []ALState
	WorkingCounter uint16
}

// NewFrame creates a frame with owned buffers of the given dimensions
func NewFrame(inputSize uint32, slaveCount int) *Frame {
	return &Frame{
		Inputs:      make([]byte, inputSize),
		SlaveStates: make([]ALState, slaveCount),
	}
}
