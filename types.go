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

// Package clock implements a Modbus TCP clock server: the current wall-clock
// time, a GMT offset and a daylight-saving flag are published as a per-slave
// register bank and kept in sync with the system clock once per second.
package clock

import "time"

// UnitID represents the Modbus unit identifier (slave address).
type UnitID uint8

// FunctionCode represents a Modbus function code.
type FunctionCode uint8

// Function codes serviced by the server.
const (
	FuncReadCoils              FunctionCode = 0x01
	FuncReadHoldingRegisters   FunctionCode = 0x03
	FuncReadInputRegisters     FunctionCode = 0x04
	FuncWriteSingleCoil        FunctionCode = 0x05
	FuncWriteSingleRegister    FunctionCode = 0x06
	FuncWriteMultipleCoils     FunctionCode = 0x0F
	FuncWriteMultipleRegisters FunctionCode = 0x10
)

// String returns the string representation of FunctionCode.
func (fc FunctionCode) String() string {
	switch fc {
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	default:
		return "Unknown"
	}
}

// Protocol constants.
const (
	// MaxQuantityCoils is the maximum number of coils that can be read/written.
	MaxQuantityCoils = 2000

	// MaxQuantityRegisters is the maximum number of registers that can be read.
	MaxQuantityRegisters = 125

	// MaxQuantityWriteRegisters is the maximum number of registers that can be written.
	MaxQuantityWriteRegisters = 123

	// MBAPHeaderSize is the size of the MBAP header in bytes.
	MBAPHeaderSize = 7

	// ProtocolID is the Modbus protocol identifier (always 0 for Modbus TCP).
	ProtocolID = 0
)

// Coil values for write operations.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// Register map of the clock slave. Data addresses are 1-based; on the wire,
// PDU address 0 corresponds to data address 1.
const (
	// CoilDaylight is the daylight-saving coil (read/write).
	CoilDaylight = 1

	// RegGMTOffset is the signed 32-bit GMT offset in seconds, occupying
	// holding registers 1-2 in big-endian (ABCD) word order (read/write).
	RegGMTOffset = 1

	// InputClock is the first of the eight read-only clock input registers.
	InputClock = 1

	// ClockFieldCount is the number of clock input registers.
	ClockFieldCount = 8
)

// Indices into CalendarFields.
const (
	FieldSeconds = iota // 0-60
	FieldMinutes        // 0-59
	FieldHours          // 0-23
	FieldDay            // 1-31
	FieldMonth          // 1-12
	FieldYear           // e.g. 2019
	FieldWeekday        // 0-6, Sunday = 0
	FieldYearDay        // 1-366
)

// Defaults.
const (
	// DefaultSlaveAddress is the slave address of the clock register bank.
	DefaultSlaveAddress UnitID = 10

	// DefaultTableSize is the default size of each register table of a slave.
	DefaultTableSize = 125

	// DefaultPollInterval is the I/O servicing slice of the main loop.
	DefaultPollInterval = 100 * time.Millisecond
)
