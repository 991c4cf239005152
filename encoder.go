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

// CalendarFields is the ordered 8-field register image of one instant:
// seconds, minutes, hours, day of month, month, year, weekday (Sunday = 0)
// and day of year (1 Jan = 1).
type CalendarFields [ClockFieldCount]uint16

// EncodeCalendar decomposes a Unix timestamp into the 8 clock register
// fields. The timestamp is interpreted in UTC; any offset or daylight-saving
// adjustment must already be applied by the caller. Pre-epoch (negative)
// timestamps encode to the corresponding proleptic calendar point.
func EncodeCalendar(ts int64) CalendarFields {
	t := time.Unix(ts, 0).UTC()

	var f CalendarFields
	f[FieldSeconds] = uint16(t.Second())
	f[FieldMinutes] = uint16(t.Minute())
	f[FieldHours] = uint16(t.Hour())
	f[FieldDay] = uint16(t.Day())
	f[FieldMonth] = uint16(t.Month())
	f[FieldYear] = uint16(t.Year())
	f[FieldWeekday] = uint16(t.Weekday())
	f[FieldYearDay] = uint16(t.YearDay())
	return f
}
