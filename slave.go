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

import "sync"

// Slave is a buffered register bank for one Modbus unit: coils, holding
// registers and input registers, addressed with 1-based data addresses.
// Writes arriving from a client land here and are picked up by the refresh
// scheduler on its next cycle; published values stay until overwritten.
//
// All accessors are safe for concurrent use. A multi-register read or write
// happens under a single lock acquisition, so a block is always observed
// all-or-nothing.
type Slave struct {
	unitID UnitID

	mu      sync.RWMutex
	coils   []bool
	holding []uint16
	input   []uint16
}

// NewSlave creates a register bank with the given number of entries per table.
func NewSlave(unitID UnitID, size int) *Slave {
	if size <= 0 {
		size = DefaultTableSize
	}
	return &Slave{
		unitID:  unitID,
		coils:   make([]bool, size),
		holding: make([]uint16, size),
		input:   make([]uint16, size),
	}
}

// UnitID returns the slave address of this register bank.
func (s *Slave) UnitID() UnitID {
	return s.unitID
}

// Size returns the number of entries in each register table.
func (s *Slave) Size() int {
	return len(s.coils)
}

func (s *Slave) checkRange(fc FunctionCode, addr uint16, qty int, table int) error {
	if addr < 1 || int(addr)-1+qty > table {
		return NewModbusError(fc, ExceptionIllegalDataAddress)
	}
	return nil
}

// ReadCoil reads a single coil.
func (s *Slave) ReadCoil(addr uint16) (bool, error) {
	values, err := s.ReadCoils(addr, 1)
	if err != nil {
		return false, err
	}
	return values[0], nil
}

// WriteCoil writes a single coil.
func (s *Slave) WriteCoil(addr uint16, value bool) error {
	return s.WriteCoils(addr, []bool{value})
}

// ReadCoils reads qty coils starting at addr.
func (s *Slave) ReadCoils(addr uint16, qty uint16) ([]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkRange(FuncReadCoils, addr, int(qty), len(s.coils)); err != nil {
		return nil, err
	}
	result := make([]bool, qty)
	copy(result, s.coils[addr-1:int(addr)-1+int(qty)])
	return result, nil
}

// WriteCoils writes a block of coils starting at addr.
func (s *Slave) WriteCoils(addr uint16, values []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRange(FuncWriteMultipleCoils, addr, len(values), len(s.coils)); err != nil {
		return err
	}
	copy(s.coils[addr-1:], values)
	return nil
}

// ReadRegister reads a single holding register.
func (s *Slave) ReadRegister(addr uint16) (uint16, error) {
	values, err := s.ReadRegisters(addr, 1)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// WriteRegister writes a single holding register. Values are stored verbatim,
// the bank performs no plausibility validation.
func (s *Slave) WriteRegister(addr uint16, value uint16) error {
	return s.WriteRegisters(addr, []uint16{value})
}

// ReadRegisters reads qty holding registers starting at addr.
func (s *Slave) ReadRegisters(addr uint16, qty uint16) ([]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkRange(FuncReadHoldingRegisters, addr, int(qty), len(s.holding)); err != nil {
		return nil, err
	}
	result := make([]uint16, qty)
	copy(result, s.holding[addr-1:int(addr)-1+int(qty)])
	return result, nil
}

// WriteRegisters writes a block of holding registers starting at addr.
func (s *Slave) WriteRegisters(addr uint16, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRange(FuncWriteMultipleRegisters, addr, len(values), len(s.holding)); err != nil {
		return err
	}
	copy(s.holding[addr-1:], values)
	return nil
}

// ReadInt32 reads a signed 32-bit value from holding registers addr and
// addr+1 in big-endian (ABCD) word order.
func (s *Slave) ReadInt32(addr uint16) (int32, error) {
	values, err := s.ReadRegisters(addr, 2)
	if err != nil {
		return 0, err
	}
	return int32(uint32(values[0])<<16 | uint32(values[1])), nil
}

// WriteInt32 writes a signed 32-bit value to holding registers addr and
// addr+1 in big-endian (ABCD) word order.
func (s *Slave) WriteInt32(addr uint16, value int32) error {
	v := uint32(value)
	return s.WriteRegisters(addr, []uint16{uint16(v >> 16), uint16(v)})
}

// ReadInputRegisters reads qty input registers starting at addr.
func (s *Slave) ReadInputRegisters(addr uint16, qty uint16) ([]uint16, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkRange(FuncReadInputRegisters, addr, int(qty), len(s.input)); err != nil {
		return nil, err
	}
	result := make([]uint16, qty)
	copy(result, s.input[addr-1:int(addr)-1+int(qty)])
	return result, nil
}

// WriteInputRegisters publishes a block of input registers starting at addr.
// The whole block becomes visible in one step; a concurrent reader sees
// either the previous block or the new one, never a mixture.
func (s *Slave) WriteInputRegisters(addr uint16, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRange(FuncReadInputRegisters, addr, len(values), len(s.input)); err != nil {
		return err
	}
	copy(s.input[addr-1:], values)
	return nil
}
