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
	"sync"
	"testing"
)

func TestSlave_ReadWriteCoil(t *testing.T) {
	slv := NewSlave(DefaultSlaveAddress, 0)

	if err := slv.WriteCoil(CoilDaylight, true); err != nil {
		t.Fatalf("WriteCoil failed: %v", err)
	}

	v, err := slv.ReadCoil(CoilDaylight)
	if err != nil {
		t.Fatalf("ReadCoil failed: %v", err)
	}
	if !v {
		t.Error("Coil should be true")
	}
}

func TestSlave_ReadWriteRegisters(t *testing.T) {
	slv := NewSlave(DefaultSlaveAddress, 0)

	values := []uint16{1111, 2222, 3333}
	if err := slv.WriteRegisters(5, values); err != nil {
		t.Fatalf("WriteRegisters failed: %v", err)
	}

	regs, err := slv.ReadRegisters(5, 3)
	if err != nil {
		t.Fatalf("ReadRegisters failed: %v", err)
	}
	for i, v := range values {
		if regs[i] != v {
			t.Errorf("Register[%d]: expected %d, got %d", i, v, regs[i])
		}
	}
}

func TestSlave_Int32WordOrder(t *testing.T) {
	slv := NewSlave(DefaultSlaveAddress, 0)

	// -7200 = 0xFFFFE3E0: most-significant word first (ABCD).
	if err := slv.WriteInt32(RegGMTOffset, -7200); err != nil {
		t.Fatalf("WriteInt32 failed: %v", err)
	}

	high, err := slv.ReadRegister(RegGMTOffset)
	if err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}
	low, err := slv.ReadRegister(RegGMTOffset + 1)
	if err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}
	if high != 0xFFFF || low != 0xE3E0 {
		t.Errorf("word order: expected FFFF E3E0, got %04X %04X", high, low)
	}

	v, err := slv.ReadInt32(RegGMTOffset)
	if err != nil {
		t.Fatalf("ReadInt32 failed: %v", err)
	}
	if v != -7200 {
		t.Errorf("round trip: expected -7200, got %d", v)
	}
}

func TestSlave_Int32Positive(t *testing.T) {
	slv := NewSlave(DefaultSlaveAddress, 0)

	if err := slv.WriteInt32(RegGMTOffset, 3600); err != nil {
		t.Fatalf("WriteInt32 failed: %v", err)
	}

	high, _ := slv.ReadRegister(RegGMTOffset)
	low, _ := slv.ReadRegister(RegGMTOffset + 1)
	if high != 0x0000 || low != 0x0E10 {
		t.Errorf("word order: expected 0000 0E10, got %04X %04X", high, low)
	}
}

func TestSlave_AddressBounds(t *testing.T) {
	slv := NewSlave(DefaultSlaveAddress, 8)

	if _, err := slv.ReadCoils(0, 1); !IsException(err, ExceptionIllegalDataAddress) {
		t.Errorf("address 0: expected illegal data address, got %v", err)
	}
	if _, err := slv.ReadInputRegisters(5, 8); !IsException(err, ExceptionIllegalDataAddress) {
		t.Errorf("past end: expected illegal data address, got %v", err)
	}
	if err := slv.WriteRegisters(8, []uint16{1, 2}); !IsException(err, ExceptionIllegalDataAddress) {
		t.Errorf("write past end: expected illegal data address, got %v", err)
	}
	if _, err := slv.ReadInputRegisters(1, 8); err != nil {
		t.Errorf("full table read failed: %v", err)
	}
}

func TestSlave_NoValueValidation(t *testing.T) {
	slv := NewSlave(DefaultSlaveAddress, 0)

	// Implausible offsets are stored as-is.
	if err := slv.WriteInt32(RegGMTOffset, -2000000000); err != nil {
		t.Fatalf("WriteInt32 failed: %v", err)
	}
	v, _ := slv.ReadInt32(RegGMTOffset)
	if v != -2000000000 {
		t.Errorf("expected -2000000000, got %d", v)
	}
}

func TestSlave_AtomicBlockPublish(t *testing.T) {
	slv := NewSlave(DefaultSlaveAddress, ClockFieldCount)

	blockA := []uint16{1, 1, 1, 1, 1, 1, 1, 1}
	blockB := []uint16{2, 2, 2, 2, 2, 2, 2, 2}
	slv.WriteInputRegisters(InputClock, blockA)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if i%2 == 0 {
				slv.WriteInputRegisters(InputClock, blockB)
			} else {
				slv.WriteInputRegisters(InputClock, blockA)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		regs, err := slv.ReadInputRegisters(InputClock, ClockFieldCount)
		if err != nil {
			t.Fatalf("ReadInputRegisters failed: %v", err)
		}
		for _, v := range regs[1:] {
			if v != regs[0] {
				t.Fatalf("torn block read: %v", regs)
			}
		}
	}

	close(done)
	wg.Wait()
}
