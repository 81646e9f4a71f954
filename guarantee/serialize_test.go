//
// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package guarantee

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dplib/accounting/dperr"
)

func TestSnapshotRoundTrip(t *testing.T) {
	pure, _ := NewPureDP(ln3)
	approx, _ := NewApproxDP(ln3, 1e-7)
	zcdp, _ := NewZCDP(0.125)
	rdp, _ := NewRDP([]RDPPoint{{Order: 2, Epsilon: 0.1}, {Order: 16, Epsilon: 0.9}})
	gdp, _ := NewGDP(0.75)
	for _, tc := range []struct {
		desc string
		g    Guarantee
	}{
		{"pure", pure},
		{"approx", approx},
		{"zcdp", zcdp},
		{"rdp", rdp},
		{"gdp", gdp},
	} {
		data, err := json.Marshal(tc.g)
		if err != nil {
			t.Errorf("Marshal: when %s got error %v", tc.desc, err)
			continue
		}
		var got Guarantee
		if err := json.Unmarshal(data, &got); err != nil {
			t.Errorf("Unmarshal: when %s got error %v", tc.desc, err)
			continue
		}
		if !got.Equal(tc.g) {
			t.Errorf("round trip: when %s got %v, want %v", tc.desc, got, tc.g)
		}
	}
}

func TestUnmarshalRejectsInvalidSnapshots(t *testing.T) {
	for _, tc := range []struct {
		desc string
		data string
	}{
		{"unknown model", `{"model":"renyi","parameters":{}}`},
		{"missing epsilon", `{"model":"pure_dp","parameters":{}}`},
		{"negative epsilon", `{"model":"pure_dp","parameters":{"epsilon":-1}}`},
		{"delta out of range", `{"model":"approx_dp","parameters":{"epsilon":1,"delta":2}}`},
		{"empty rdp curve", `{"model":"rdp","parameters":{}}`},
		{"not json", `epsilon=1`},
	} {
		var g Guarantee
		if err := json.Unmarshal([]byte(tc.data), &g); !errors.Is(err, dperr.ErrValidation) {
			t.Errorf("Unmarshal: when %s got %v, want a validation error", tc.desc, err)
		}
	}
}

func TestMarshalRejectsZeroValue(t *testing.T) {
	var g Guarantee
	if _, err := json.Marshal(g); err == nil {
		t.Errorf("Marshal: zero-value guarantee should be rejected")
	}
}
