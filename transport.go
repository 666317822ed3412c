package goecat

import "time"

// Transport is the narrow contract against the underlying EtherCAT
// master implementation. Exactly one goroutine, the cyclic exchange
// loop, may call Receive and Send. Receive is the only call that may
// block and it must return within the given deadline.
//
// Transport setup (slave discovery, SDO downloads, PDO assignment on
// the wire) happens before the loop starts and is owned by the
// concrete implementation, see for example [pkg/transport/virtual].
type Transport interface {
	// Deliver the latest input frame. Implementations return
	// [ErrExchangeTimeout] when no frame arrived within timeout.
	Receive(timeout time.Duration) (*Frame, error)
	// Queue the full output area for transmission to the slaves.
	// The buffer is only valid for the duration of the call.
	Send(outputs []byte) error
	Close() error
}
