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

import "time"

// OffsetState is the externally writable clock configuration: the signed GMT
// offset in seconds and the daylight-saving flag. The offset is applied
// verbatim; the flag, when set, contributes a further +3600 seconds.
type OffsetState struct {
	GMTOffsetSeconds int32
	DSTActive        bool
}

// Adjust applies the state to a UTC timestamp.
func (st OffsetState) Adjust(ts int64) int64 {
	adjusted := ts + int64(st.GMTOffsetSeconds)
	if st.DSTActive {
		adjusted += 3600
	}
	return adjusted
}

// LocalOffsetState resolves the host's local-time-zone offset and
// daylight-saving flag for the given instant. It is meant to be called once,
// at startup; afterwards the live state is owned by the register bank and is
// never recomputed from the OS.
func LocalOffsetState(now time.Time) OffsetState {
	_, offset := now.Zone()
	return OffsetState{
		GMTOffsetSeconds: int32(offset),
		DSTActive:        now.IsDST(),
	}
}
