package goecat

import "errors"

var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrExchangeTimeout = errors.New("no frame received within cycle deadline")
	ErrTransport       = errors.New("transport failure")
	ErrWorkingCounter  = errors.New("working counter mismatch")
	ErrConfig          = errors.New("invalid configuration")
	ErrWrongState      = errors.New("command can't be processed in the current state")
	ErrNotRunning      = errors.New("cyclic loop is not running")
)
