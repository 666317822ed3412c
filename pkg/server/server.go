// Package server exposes the PLC extern memory over Modbus TCP for
// external monitoring and control. Requests are never applied
// directly, they are forwarded to the cyclic loop and answered after
// the loop's data exchange step, so server connections can never touch
// PLC memory mid-cycle.
package server

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Modbus exception codes used by the server
const (
	ExIllegalFunction    uint8 = 1
	ExIllegalDataAddress uint8 = 2
	ExServerFailure      uint8 = 4
)

const (
	maxFrameSize = 255
	replyTimeout = 5 * time.Second
)

// A Request is one read or write against the PLC extern memory.
// Addr and Count are byte based, register addresses are scaled by two
// by the protocol handler. Write is nil for read requests.
type Request struct {
	Addr  int
	Count int
	Write []byte
	resp  chan response
}

type response struct {
	data      []byte
	exception uint8
}

// Reply completes the request successfully
func (req *Request) Reply(data []byte) {
	req.resp <- response{data: data}
}

// Fail completes the request with a Modbus exception code
func (req *Request) Fail(exception uint8) {
	req.resp <- response{exception: exception}
}

// Server accepts Modbus TCP connections and turns function codes
// 3, 4, 6 and 16 into [Request] values consumed by the cyclic loop.
type Server struct {
	listener net.Listener
	requests chan *Request
	wg       sync.WaitGroup
	closing  chan struct{}
}

func New() *Server {
	return &Server{
		requests: make(chan *Request),
		closing:  make(chan struct{}),
	}
}

// Requests is the channel drained by the cyclic loop between the send
// step and the next cycle
func (srv *Server) Requests() <-chan *Request {
	return srv.requests
}

// Start listens on addr and serves connections until Stop
func (srv *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv.listener = listener
	log.Infof("[SERVER] listening on %v", listener.Addr())

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-srv.closing:
					return
				default:
					log.Warnf("[SERVER] accept failed : %v", err)
					return
				}
			}
			srv.wg.Add(1)
			go func() {
				defer srv.wg.Done()
				srv.handle(conn)
			}()
		}
	}()
	return nil
}

// Addr returns the bound listen address, useful with ":0"
func (srv *Server) Addr() string {
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Stop closes the listener and waits for all connection handlers
func (srv *Server) Stop() error {
	close(srv.closing)
	var err error
	if srv.listener != nil {
		err = srv.listener.Close()
	}
	srv.wg.Wait()
	return err
}

// handle serves one Modbus TCP connection until it closes
func (srv *Server) handle(conn net.Conn) {
	defer conn.Close()
	log.Infof("[SERVER] connection accepted from %v", conn.RemoteAddr())

	head := make([]byte, 8)
	body := make([]byte, maxFrameSize)
	for {
		if _, err := io.ReadFull(conn, head); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warnf("[SERVER] error reading request head : %v", err)
			}
			break
		}
		// MBAP : transaction id, protocol id, length, unit id
		tid := binary.BigEndian.Uint16(head[0:2])
		if head[2] != 0 || head[3] != 0 {
			log.Warnf("[SERVER] protocol id mismatch : %v", head)
			break
		}
		dataLen := int(binary.BigEndian.Uint16(head[4:6]))
		if dataLen < 2 || dataLen > maxFrameSize {
			log.Warnf("[SERVER] invalid frame length %v", dataLen)
			break
		}
		if _, err := io.ReadFull(conn, body[:dataLen-2]); err != nil {
			log.Warnf("[SERVER] error reading request body : %v", err)
			break
		}
		unit := head[6]
		fc := head[7]
		if err := srv.serveRequest(conn, tid, unit, fc, body[:dataLen-2]); err != nil {
			log.Warnf("[SERVER] error serving request : %v", err)
			break
		}
	}
	log.Infof("[SERVER] connection closed from %v", conn.RemoteAddr())
}

func (srv *Server) serveRequest(conn net.Conn, tid uint16, unit uint8, fc uint8, body []byte) error {
	var req *Request
	switch fc {
	case 3, 4: // read holding / input registers
		if len(body) != 4 {
			return writeException(conn, tid, unit, fc, ExIllegalDataAddress)
		}
		addr := 2 * int(binary.BigEndian.Uint16(body[0:2]))
		count := 2 * int(binary.BigEndian.Uint16(body[2:4]))
		req = &Request{Addr: addr, Count: count, resp: make(chan response, 1)}

	case 6: // write single register
		if len(body) != 4 {
			return writeException(conn, tid, unit, fc, ExIllegalDataAddress)
		}
		addr := 2 * int(binary.BigEndian.Uint16(body[0:2]))
		// modbus registers are big-endian on the wire, PLC memory is
		// little-endian, swap the register bytes
		values := []byte{body[3], body[2]}
		req = &Request{Addr: addr, Count: 2, Write: values, resp: make(chan response, 1)}

	case 16: // write multiple registers
		if len(body) < 5 {
			return writeException(conn, tid, unit, fc, ExIllegalDataAddress)
		}
		addr := 2 * int(binary.BigEndian.Uint16(body[0:2]))
		byteCount := int(body[4])
		if len(body) != 5+byteCount || byteCount%2 != 0 {
			return writeException(conn, tid, unit, fc, ExIllegalDataAddress)
		}
		values := make([]byte, byteCount)
		for i := 0; i < byteCount; i += 2 {
			values[i] = body[5+i+1]
			values[i+1] = body[5+i]
		}
		req = &Request{Addr: addr, Count: byteCount, Write: values, resp: make(chan response, 1)}

	default:
		log.Warnf("[SERVER] unknown function code %v", fc)
		return writeException(conn, tid, unit, fc, ExIllegalFunction)
	}

	select {
	case srv.requests <- req:
	case <-srv.closing:
		return writeException(conn, tid, unit, fc, ExServerFailure)
	case <-time.After(replyTimeout):
		return writeException(conn, tid, unit, fc, ExServerFailure)
	}

	var resp response
	select {
	case resp = <-req.resp:
	case <-time.After(replyTimeout):
		resp = response{exception: ExServerFailure}
	}
	if resp.exception != 0 {
		return writeException(conn, tid, unit, fc, resp.exception)
	}
	return writeReply(conn, tid, unit, fc, req, resp.data)
}

func writeReply(conn net.Conn, tid uint16, unit uint8, fc uint8, req *Request, data []byte) error {
	buf := make([]byte, 12+len(data))
	binary.BigEndian.PutUint16(buf[0:2], tid)
	buf[6] = unit
	buf[7] = fc
	var count int
	switch fc {
	case 3, 4:
		buf[8] = uint8(len(data))
		for i := 0; i+1 < len(data); i += 2 {
			// swap back to big-endian registers
			buf[9+i] = data[i+1]
			buf[9+i+1] = data[i]
		}
		count = 9 + len(data)
	case 6:
		binary.BigEndian.PutUint16(buf[8:10], uint16(req.Addr/2))
		buf[10] = data[1]
		buf[11] = data[0]
		count = 12
	case 16:
		binary.BigEndian.PutUint16(buf[8:10], uint16(req.Addr/2))
		binary.BigEndian.PutUint16(buf[10:12], uint16(len(data)/2))
		count = 12
	}
	binary.BigEndian.PutUint16(buf[4:6], uint16(count-6))
	_, err := conn.Write(buf[:count])
	return err
}

func writeException(conn net.Conn, tid uint16, unit uint8, fc uint8, code uint8) error {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint16(buf[0:2], tid)
	binary.BigEndian.PutUint16(buf[4:6], 3)
	buf[6] = unit
	buf[7] = fc | 0x80
	buf[8] = code
	_, err := conn.Write(buf)
	return err
}
