// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clock

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Server is a poll-driven Modbus TCP server. Connections are accepted and
// read on background goroutines, but requests are only answered from within
// Poll, on the caller's goroutine. The host process drives the server by
// calling Poll repeatedly, interleaved with whatever per-tick work it owns;
// register servicing therefore shares one execution context with that work.
type Server struct {
	opts *serverOptions

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	slaves   map[UnitID]*Slave
	closed   int32
	done     chan struct{}
	wg       sync.WaitGroup
	reqCh    chan *pendingRequest
	metrics  *ServerMetrics
}

type pendingRequest struct {
	frame *Frame
	resp  chan *Frame
}

// NewServer creates a new Modbus TCP server with no slaves registered.
func NewServer(opts ...ServerOption) *Server {
	options := defaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Server{
		opts:    options,
		conns:   make(map[net.Conn]struct{}),
		slaves:  make(map[UnitID]*Slave),
		done:    make(chan struct{}),
		reqCh:   make(chan *pendingRequest, options.queueDepth),
		metrics: &ServerMetrics{},
	}
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *ServerMetrics {
	return s.metrics
}

// Slave returns the register bank for the given unit ID, registering it on
// first use. Requests addressed to unregistered units are answered with a
// gateway-path-unavailable exception.
func (s *Server) Slave(id UnitID) *Slave {
	s.mu.Lock()
	defer s.mu.Unlock()
	slv, ok := s.slaves[id]
	if !ok {
		slv = NewSlave(id, s.opts.tableSize)
		s.slaves[id] = slv
	}
	return slv
}

// Open binds the listening transport and starts accepting connections. A
// bind failure is reported to the caller and is fatal to startup.
func (s *Server) Open(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.opts.logger.Info("server started", slog.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// IsOpen reports whether the server is accepting connections.
func (s *Server) IsOpen() bool {
	if atomic.LoadInt32(&s.closed) == 1 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Addr returns the server's address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ActiveConnections returns the number of active connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close shuts down the server gracefully.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	close(s.done)

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.opts.logger.Info("server stopped")
	return err
}

// Poll services pending client requests for up to the given duration and
// returns the number of requests answered. With a non-positive timeout it
// drains whatever is already queued and returns immediately.
func (s *Server) Poll(timeout time.Duration) int {
	serviced := 0

	if timeout <= 0 {
		for {
			select {
			case pr := <-s.reqCh:
				pr.resp <- s.processRequest(pr.frame)
				serviced++
			default:
				return serviced
			}
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case pr := <-s.reqCh:
			pr.resp <- s.processRequest(pr.frame)
			serviced++
		case <-timer.C:
			return serviced
		case <-s.done:
			return serviced
		}
	}
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return
			}
			s.opts.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= s.opts.maxConns {
			s.mu.Unlock()
			s.opts.logger.Warn("max connections reached, rejecting",
				slog.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.metrics.ActiveConns.Add(1)
		s.metrics.TotalConns.Add(1)
		s.mu.Unlock()

		// Configure TCP options
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(30 * time.Second)
			tcpConn.SetNoDelay(true)
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		// Recover from panic to prevent server crash
		if r := recover(); r != nil {
			s.opts.logger.Error("panic in connection handler",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}

		s.wg.Done()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.metrics.ActiveConns.Add(-1)
		s.mu.Unlock()
	}()

	s.opts.logger.Debug("connection accepted",
		slog.String("remote", conn.RemoteAddr().String()))

	for {
		if atomic.LoadInt32(&s.closed) == 1 {
			return
		}

		if s.opts.readTimeout > 0 {
			conn.SetReadDeadline(timeNow().Add(s.opts.readTimeout))
		}

		frame, err := ReadFrame(conn)
		if err != nil {
			if err != io.EOF && atomic.LoadInt32(&s.closed) == 0 {
				// Don't log timeout errors as they're expected for idle connections
				if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
					s.opts.logger.Debug("read error",
						slog.String("remote", conn.RemoteAddr().String()),
						slog.String("error", err.Error()))
				}
			}
			return
		}

		s.metrics.RequestsTotal.Add(1)

		// Hand the request to the poll loop and wait for its answer.
		pr := &pendingRequest{frame: frame, resp: make(chan *Frame, 1)}
		select {
		case s.reqCh <- pr:
		case <-s.done:
			return
		}

		var response *Frame
		select {
		case response = <-pr.resp:
		case <-s.done:
			return
		}

		if s.opts.readTimeout > 0 {
			conn.SetWriteDeadline(timeNow().Add(s.opts.readTimeout))
		}

		if _, err := conn.Write(response.Encode()); err != nil {
			s.metrics.RequestsErrors.Add(1)
			s.opts.logger.Debug("write error",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()))
			return
		}

		s.metrics.RequestsSuccess.Add(1)
	}
}

func (s *Server) processRequest(req *Frame) *Frame {
	resp := &Frame{
		Header: MBAPHeader{
			TransactionID: req.Header.TransactionID,
			ProtocolID:    ProtocolID,
			UnitID:        req.Header.UnitID,
		},
	}

	if len(req.PDU) < 1 {
		resp.PDU = buildException(0, ExceptionIllegalFunction)
		return resp
	}

	fc := FunctionCode(req.PDU[0])

	s.mu.Lock()
	slv, ok := s.slaves[req.Header.UnitID]
	s.mu.Unlock()
	if !ok {
		resp.PDU = buildException(fc, ExceptionGatewayPathUnavailable)
		return resp
	}

	s.opts.logger.Debug("processing request",
		slog.Uint64("tx_id", uint64(req.Header.TransactionID)),
		slog.Uint64("unit_id", uint64(req.Header.UnitID)),
		slog.String("func", fc.String()))

	var pdu []byte
	var err error

	switch fc {
	case FuncReadCoils:
		pdu, err = s.handleReadCoils(slv, req.PDU)
	case FuncReadHoldingRegisters:
		pdu, err = s.handleReadHoldingRegisters(slv, req.PDU)
	case FuncReadInputRegisters:
		pdu, err = s.handleReadInputRegisters(slv, req.PDU)
	case FuncWriteSingleCoil:
		pdu, err = s.handleWriteSingleCoil(slv, req.PDU)
	case FuncWriteSingleRegister:
		pdu, err = s.handleWriteSingleRegister(slv, req.PDU)
	case FuncWriteMultipleCoils:
		pdu, err = s.handleWriteMultipleCoils(slv, req.PDU)
	case FuncWriteMultipleRegisters:
		pdu, err = s.handleWriteMultipleRegisters(slv, req.PDU)
	default:
		pdu = buildException(fc, ExceptionIllegalFunction)
	}

	if err != nil {
		pdu = s.handleError(fc, err)
	}

	resp.PDU = pdu
	return resp
}

func buildException(fc FunctionCode, ec ExceptionCode) []byte {
	return []byte{byte(fc) | 0x80, byte(ec)}
}

func (s *Server) handleError(fc FunctionCode, err error) []byte {
	if modbusErr, ok := err.(*ModbusError); ok {
		return buildException(fc, modbusErr.ExceptionCode)
	}
	s.opts.logger.Error("handler error",
		slog.String("func", fc.String()),
		slog.String("error", err.Error()))
	return buildException(fc, ExceptionServerDeviceFailure)
}

// PDU addresses are 0-based on the wire; the register banks use 1-based data
// addresses, so every handler translates with +1.

func (s *Server) handleReadCoils(slv *Slave, pdu []byte) ([]byte, error) {
	if len(pdu) < 5 {
		return buildException(FuncReadCoils, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])

	if qty < 1 || qty > MaxQuantityCoils {
		return buildException(FuncReadCoils, ExceptionIllegalDataValue), nil
	}

	values, err := slv.ReadCoils(addr+1, qty)
	if err != nil {
		return nil, err
	}

	byteCount := (qty + 7) / 8
	resp := make([]byte, 2+byteCount)
	resp[0] = byte(FuncReadCoils)
	resp[1] = byte(byteCount)
	for i, v := range values {
		if v {
			resp[2+i/8] |= 1 << (i % 8)
		}
	}
	return resp, nil
}

func (s *Server) handleReadHoldingRegisters(slv *Slave, pdu []byte) ([]byte, error) {
	if len(pdu) < 5 {
		return buildException(FuncReadHoldingRegisters, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])

	if qty < 1 || qty > MaxQuantityRegisters {
		return buildException(FuncReadHoldingRegisters, ExceptionIllegalDataValue), nil
	}

	values, err := slv.ReadRegisters(addr+1, qty)
	if err != nil {
		return nil, err
	}

	byteCount := qty * 2
	resp := make([]byte, 2+byteCount)
	resp[0] = byte(FuncReadHoldingRegisters)
	resp[1] = byte(byteCount)
	for i, v := range values {
		binary.BigEndian.PutUint16(resp[2+i*2:], v)
	}
	return resp, nil
}

func (s *Server) handleReadInputRegisters(slv *Slave, pdu []byte) ([]byte, error) {
	if len(pdu) < 5 {
		return buildException(FuncReadInputRegisters, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])

	if qty < 1 || qty > MaxQuantityRegisters {
		return buildException(FuncReadInputRegisters, ExceptionIllegalDataValue), nil
	}

	values, err := slv.ReadInputRegisters(addr+1, qty)
	if err != nil {
		return nil, err
	}

	byteCount := qty * 2
	resp := make([]byte, 2+byteCount)
	resp[0] = byte(FuncReadInputRegisters)
	resp[1] = byte(byteCount)
	for i, v := range values {
		binary.BigEndian.PutUint16(resp[2+i*2:], v)
	}
	return resp, nil
}

func (s *Server) handleWriteSingleCoil(slv *Slave, pdu []byte) ([]byte, error) {
	if len(pdu) < 5 {
		return buildException(FuncWriteSingleCoil, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	value := binary.BigEndian.Uint16(pdu[3:5])

	var boolValue bool
	if value == CoilOn {
		boolValue = true
	} else if value != CoilOff {
		return buildException(FuncWriteSingleCoil, ExceptionIllegalDataValue), nil
	}

	if err := slv.WriteCoil(addr+1, boolValue); err != nil {
		return nil, err
	}

	// Echo request as response (copy to avoid sharing slice)
	resp := make([]byte, 5)
	copy(resp, pdu[:5])
	return resp, nil
}

func (s *Server) handleWriteSingleRegister(slv *Slave, pdu []byte) ([]byte, error) {
	if len(pdu) < 5 {
		return buildException(FuncWriteSingleRegister, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	value := binary.BigEndian.Uint16(pdu[3:5])

	if err := slv.WriteRegister(addr+1, value); err != nil {
		return nil, err
	}

	// Echo request as response (copy to avoid sharing slice)
	resp := make([]byte, 5)
	copy(resp, pdu[:5])
	return resp, nil
}

func (s *Server) handleWriteMultipleCoils(slv *Slave, pdu []byte) ([]byte, error) {
	if len(pdu) < 6 {
		return buildException(FuncWriteMultipleCoils, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	byteCount := int(pdu[5])

	if qty < 1 || qty > MaxQuantityCoils {
		return buildException(FuncWriteMultipleCoils, ExceptionIllegalDataValue), nil
	}

	expectedBytes := int((qty + 7) / 8)
	if byteCount != expectedBytes || len(pdu) < 6+byteCount {
		return buildException(FuncWriteMultipleCoils, ExceptionIllegalDataValue), nil
	}

	values := make([]bool, qty)
	for i := uint16(0); i < qty; i++ {
		values[i] = (pdu[6+i/8] & (1 << (i % 8))) != 0
	}

	if err := slv.WriteCoils(addr+1, values); err != nil {
		return nil, err
	}

	resp := make([]byte, 5)
	resp[0] = byte(FuncWriteMultipleCoils)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp, nil
}

func (s *Server) handleWriteMultipleRegisters(slv *Slave, pdu []byte) ([]byte, error) {
	if len(pdu) < 6 {
		return buildException(FuncWriteMultipleRegisters, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	qty := binary.BigEndian.Uint16(pdu[3:5])
	byteCount := int(pdu[5])

	if qty < 1 || qty > MaxQuantityWriteRegisters {
		return buildException(FuncWriteMultipleRegisters, ExceptionIllegalDataValue), nil
	}

	expectedBytes := int(qty * 2)
	if byteCount != expectedBytes || len(pdu) < 6+byteCount {
		return buildException(FuncWriteMultipleRegisters, ExceptionIllegalDataValue), nil
	}

	values := make([]uint16, qty)
	for i := uint16(0); i < qty; i++ {
		values[i] = binary.BigEndian.Uint16(pdu[6+i*2:])
	}

	if err := slv.WriteRegisters(addr+1, values); err != nil {
		return nil, err
	}

	resp := make([]byte, 5)
	resp[0] = byte(FuncWriteMultipleRegisters)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp, nil
}

// timeNow is a variable for testing
var timeNow = time.Now
