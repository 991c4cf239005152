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
	"fmt"
	"time"
)

// Scheduler refreshes the published clock registers of a slave. It never
// sleeps or blocks; cadence is entirely a function of how often the driving
// loop calls Tick, and a refresh happens at most once per distinct second.
type Scheduler struct {
	slave *Slave
	last  int64 // unix second of the previous refresh
}

// NewScheduler binds a scheduler to a slave's register bank. It fails if the
// bank is too small to hold the clock register map.
func NewScheduler(slv *Slave) (*Scheduler, error) {
	if slv.Size() < InputClock-1+ClockFieldCount || slv.Size() < RegGMTOffset+1 {
		return nil, fmt.Errorf("%w: slave table too small for clock map", ErrInvalidAddress)
	}
	return &Scheduler{slave: slv}, nil
}

// Seed writes the initial offset/DST state into the register bank. Subsequent
// changes arrive only through external register writes.
func (s *Scheduler) Seed(st OffsetState) {
	// Addresses were validated in NewScheduler, these writes cannot fail.
	s.slave.WriteCoil(CoilDaylight, st.DSTActive)
	s.slave.WriteInt32(RegGMTOffset, st.GMTOffsetSeconds)
}

// State returns the offset/DST state currently held by the register bank.
func (s *Scheduler) State() OffsetState {
	dst, _ := s.slave.ReadCoil(CoilDaylight)
	offset, _ := s.slave.ReadInt32(RegGMTOffset)
	return OffsetState{GMTOffsetSeconds: offset, DSTActive: dst}
}

// Tick runs one scheduling decision for the given instant. If the sampled
// second strictly exceeds the one recorded at the previous refresh, it reads
// the offset/DST registers, encodes the adjusted timestamp and republishes
// the 8 clock input registers as one block, then reports true. Within the
// same second it is a no-op and reports false.
func (s *Scheduler) Tick(now time.Time) bool {
	ts := now.Unix()
	if ts <= s.last {
		return false
	}
	s.last = ts

	fields := EncodeCalendar(s.State().Adjust(ts))
	s.slave.WriteInputRegisters(InputClock, fields[:])
	return true
}
