// Package plc drives the cyclic process data exchange : once per
// cycle the loop receives the latest input frame, refreshes slave
// status, advances the master state machine, runs the application
// logic and sends the output buffer back to the slaves.
package plc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goecat "github.com/fieldforge/goecat"
	"github.com/fieldforge/goecat/pkg/image"
	"github.com/fieldforge/goecat/pkg/master"
	"github.com/fieldforge/goecat/pkg/server"
	log "github.com/sirupsen/logrus"
)

// CycleFunc is the application logic invoked once per cycle, between
// the receive and send phases. It sees a self consistent input
// snapshot for its full duration and the outputs sent afterwards
// reflect exactly one cycle's worth of computation. ext is the PLC
// extern memory shared with the diagnostics server, it is never
// touched outside the cycle.
type CycleFunc func(img *image.Image, ext []byte, mst *master.Master)

// PLC owns the cyclic exchange loop. Create one with [Builder].
type PLC struct {
	name           string
	cycleTime      time.Duration
	receiveTimeout time.Duration
	transport      goecat.Transport
	img            *image.Image
	mst            *master.Master
	srv            *server.Server
	ext            []byte
	expectedWkc    uint16

	cycles   atomic.Uint64
	running  atomic.Bool
	stopOnce sync.Once
	doneOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Image exposes the process data image, also handed to the cycle
// function each cycle
func (plc *PLC) Image() *image.Image {
	return plc.img
}

// Master exposes the state machine for monitoring and reset
func (plc *PLC) Master() *master.Master {
	return plc.mst
}

// ServerAddr returns the bound diagnostics server address, empty when
// no server is configured
func (plc *PLC) ServerAddr() string {
	if plc.srv == nil {
		return ""
	}
	return plc.srv.Addr()
}

// Cycles is the monotonically increasing cycle counter
func (plc *PLC) Cycles() uint64 {
	return plc.cycles.Load()
}

// Run executes the cyclic loop until the context is cancelled or
// [PLC.Stop] is called. The stop request is checked at the top of each
// cycle only, an in-flight send always completes so slave outputs stay
// at their last commanded state. Transport faults never abort the
// loop, they feed the master debounce and escalate through the state
// machine.
func (plc *PLC) Run(ctx context.Context, cycleFn CycleFunc) error {
	if !plc.running.CompareAndSwap(false, true) {
		return goecat.ErrWrongState
	}
	defer plc.running.Store(false)
	defer plc.doneOnce.Do(func() { close(plc.done) })

	log.Infof("[PLC] %v loop started | cycle time %v", plc.name, plc.cycleTime)
	cycleStart := time.Now()
	for {
		// stop requests are honored at cycle boundaries only
		select {
		case <-ctx.Done():
			log.Infof("[PLC] %v loop stopped | %v cycles, context cancelled", plc.name, plc.Cycles())
			return ctx.Err()
		case <-plc.stop:
			log.Infof("[PLC] %v loop stopped | %v cycles", plc.name, plc.Cycles())
			return nil
		default:
		}

		plc.singleCycle(cycleFn)

		// external data exchange with the diagnostics server
		plc.dataExchange()

		// wait until the next cycle, re-anchor after an overrun
		cycleStart = cycleStart.Add(plc.cycleTime)
		if wait := time.Until(cycleStart); wait > 0 {
			time.Sleep(wait)
		} else {
			cycleStart = time.Now()
		}
	}
}

// Stop requests a cooperative stop. Safe to call from a cycle
// function or any other goroutine, returns once requested.
func (plc *PLC) Stop() {
	plc.stopOnce.Do(func() {
		close(plc.stop)
	})
}

// Wait blocks until the loop has exited
func (plc *PLC) Wait() {
	<-plc.done
}

// Close stops the loop, the diagnostics server and the transport
func (plc *PLC) Close() error {
	plc.Stop()
	if plc.running.Load() {
		plc.Wait()
	}
	if plc.srv != nil {
		if err := plc.srv.Stop(); err != nil {
			return err
		}
	}
	return plc.transport.Close()
}

func (plc *PLC) singleCycle(cycleFn CycleFunc) {
	var cycleErr error

	// 1. receive, the only call that may block, bounded by deadline
	frame, err := plc.transport.Receive(plc.receiveTimeout)
	if err != nil {
		cycleErr = err
		log.Debugf("[PLC] %v receive failed : %v", plc.name, err)
	} else {
		copy(plc.img.Inputs(), frame.Inputs)
		// 2. refresh slave status records
		plc.mst.RefreshSlaveStatus(frame.SlaveStates)
		if frame.WorkingCounter != plc.expectedWkc {
			cycleErr = fmt.Errorf("%w: got %v, expected %v",
				goecat.ErrWorkingCounter, frame.WorkingCounter, plc.expectedWkc)
		}
	}

	// 3. advance the master state machine
	plc.mst.Advance()

	// 4. application logic, between receive and send
	if cycleFn != nil {
		cycleFn(plc.img, plc.ext, plc.mst)
	}

	// 5. send the full output area
	if err := plc.transport.Send(plc.img.Outputs()); err != nil && cycleErr == nil {
		cycleErr = err
		log.Debugf("[PLC] %v send failed : %v", plc.name, err)
	}

	// 6. feed counters for the debounce logic
	plc.mst.ReportExchange(cycleErr)
	plc.cycles.Add(1)
}

// dataExchange drains pending diagnostics requests against the extern
// memory. After a write request the loop lets a cycle run before
// serving more, mirroring the PLC scan semantics external tools
// expect.
func (plc *PLC) dataExchange() {
	if plc.srv == nil {
		return
	}
	for {
		select {
		case req := <-plc.srv.Requests():
			if req.Addr < 0 || req.Addr+req.Count > len(plc.ext) {
				req.Fail(server.ExIllegalDataAddress)
				continue
			}
			if req.Write != nil {
				copy(plc.ext[req.Addr:req.Addr+req.Count], req.Write)
				req.Reply(req.Write)
				return
			}
			data := make([]byte, req.Count)
			copy(data, plc.ext[req.Addr:])
			req.Reply(data)
		default:
			return
		}
	}
}
