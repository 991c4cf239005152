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

import "testing"

func TestCounter(t *testing.T) {
	var c Counter

	c.Add(5)
	c.Add(3)
	if c.Value() != 8 {
		t.Errorf("Value: expected 8, got %d", c.Value())
	}

	c.Reset()
	if c.Value() != 0 {
		t.Errorf("Value after reset: expected 0, got %d", c.Value())
	}
}

func TestServerMetrics_Collect(t *testing.T) {
	m := &ServerMetrics{}
	m.RequestsTotal.Add(10)
	m.Refreshes.Add(2)

	collected := m.Collect()
	if collected["requests_total"].(int64) != 10 {
		t.Errorf("requests_total: expected 10, got %v", collected["requests_total"])
	}
	if collected["refreshes"].(int64) != 2 {
		t.Errorf("refreshes: expected 2, got %v", collected["refreshes"])
	}
}
