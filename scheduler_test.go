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
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) (*Scheduler, *Slave) {
	t.Helper()
	slv := NewSlave(DefaultSlaveAddress, 0)
	sched, err := NewScheduler(slv)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	return sched, slv
}

func readClock(t *testing.T, slv *Slave) CalendarFields {
	t.Helper()
	regs, err := slv.ReadInputRegisters(InputClock, ClockFieldCount)
	if err != nil {
		t.Fatalf("ReadInputRegisters failed: %v", err)
	}
	var f CalendarFields
	copy(f[:], regs)
	return f
}

func TestNewScheduler_TableTooSmall(t *testing.T) {
	if _, err := NewScheduler(NewSlave(DefaultSlaveAddress, 4)); err == nil {
		t.Fatal("expected error for undersized table")
	}
}

func TestScheduler_SeedAndState(t *testing.T) {
	sched, slv := newTestScheduler(t)

	st := OffsetState{GMTOffsetSeconds: -7200, DSTActive: true}
	sched.Seed(st)

	if got := sched.State(); got != st {
		t.Errorf("State: expected %+v, got %+v", st, got)
	}

	dst, _ := slv.ReadCoil(CoilDaylight)
	if !dst {
		t.Error("DST coil should be set")
	}
	offset, _ := slv.ReadInt32(RegGMTOffset)
	if offset != -7200 {
		t.Errorf("offset register: expected -7200, got %d", offset)
	}
}

func TestScheduler_RefreshOncePerSecond(t *testing.T) {
	sched, slv := newTestScheduler(t)
	sched.Seed(OffsetState{})

	now := time.Date(2019, 11, 28, 15, 40, 37, 0, time.UTC)
	if !sched.Tick(now) {
		t.Fatal("first tick should refresh")
	}
	published := readClock(t, slv)

	// Same second, even with changed state: no refresh.
	slv.WriteInt32(RegGMTOffset, 7200)
	for i := 0; i < 5; i++ {
		if sched.Tick(now.Add(time.Duration(i) * 100 * time.Millisecond)) {
			t.Fatal("tick within the same second should not refresh")
		}
	}
	if got := readClock(t, slv); got != published {
		t.Errorf("registers changed without a refresh: %v vs %v", got, published)
	}

	if !sched.Tick(now.Add(time.Second)) {
		t.Fatal("next second should refresh")
	}
}

func TestScheduler_OffsetRoundTrip(t *testing.T) {
	sched, slv := newTestScheduler(t)
	sched.Seed(OffsetState{})

	// A client writes offset and DST through the register bank.
	slv.WriteInt32(RegGMTOffset, -7200)
	slv.WriteCoil(CoilDaylight, true)

	now := time.Date(2021, 6, 15, 4, 30, 0, 0, time.UTC)
	sched.Tick(now)

	want := EncodeCalendar(now.Unix() - 7200 + 3600)
	if got := readClock(t, slv); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestScheduler_NegativeOffsetShiftsHours(t *testing.T) {
	sched, slv := newTestScheduler(t)
	sched.Seed(OffsetState{GMTOffsetSeconds: 3600})

	now := time.Date(2019, 11, 28, 15, 40, 37, 0, time.UTC)
	sched.Tick(now)
	before := readClock(t, slv)

	slv.WriteInt32(RegGMTOffset, -7200)
	sched.Tick(now.Add(time.Second))
	after := readClock(t, slv)

	// -7200 relative to +3600 shifts the published hour by -3; the DST
	// contribution is unchanged.
	if after != EncodeCalendar(now.Unix()+1-7200) {
		t.Errorf("unexpected fields after offset change: %v", after)
	}
	if before[FieldHours]-after[FieldHours] != 3 {
		t.Errorf("hour shift: expected 3, got %d -> %d", before[FieldHours], after[FieldHours])
	}
}

func TestScheduler_DSTContribution(t *testing.T) {
	sched, slv := newTestScheduler(t)
	sched.Seed(OffsetState{})

	now := time.Date(2022, 3, 1, 10, 0, 0, 0, time.UTC)
	sched.Tick(now)
	base := readClock(t, slv)

	slv.WriteCoil(CoilDaylight, true)
	sched.Tick(now.Add(time.Second))
	dst := readClock(t, slv)

	if dst[FieldHours] != base[FieldHours]+1 {
		t.Errorf("DST should add exactly one hour: %d -> %d", base[FieldHours], dst[FieldHours])
	}
}

func TestOffsetState_Adjust(t *testing.T) {
	st := OffsetState{GMTOffsetSeconds: -3600, DSTActive: true}
	if got := st.Adjust(1000); got != 1000 {
		t.Errorf("Adjust: expected 1000, got %d", got)
	}

	st = OffsetState{GMTOffsetSeconds: 120}
	if got := st.Adjust(0); got != 120 {
		t.Errorf("Adjust: expected 120, got %d", got)
	}
}
