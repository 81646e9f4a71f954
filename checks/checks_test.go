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

package checks

import (
	"errors"
	"math"
	"testing"

	"github.com/dplib/accounting/dperr"
)

func TestCheckEpsilon(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		epsilon float64
		wantErr bool
	}{
		{"zero is allowed", 0, false},
		{"positive", 0.5, false},
		{"negative", -0.1, true},
		{"NaN", math.NaN(), true},
		{"infinite", math.Inf(1), true},
	} {
		err := CheckEpsilon("test", tc.epsilon)
		if (err != nil) != tc.wantErr {
			t.Errorf("CheckEpsilon: when %s got error %v, wantErr %t", tc.desc, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, dperr.ErrValidation) {
			t.Errorf("CheckEpsilon: when %s got %v, want a validation error", tc.desc, err)
		}
	}
}

func TestCheckEpsilonStrict(t *testing.T) {
	if err := CheckEpsilonStrict("test", 0); err == nil {
		t.Errorf("CheckEpsilonStrict: zero epsilon should be rejected")
	}
	if err := CheckEpsilonStrict("test", math.Log(3)); err != nil {
		t.Errorf("CheckEpsilonStrict: got error %v for a valid epsilon", err)
	}
}

func TestCheckDelta(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		delta   float64
		wantErr bool
	}{
		{"zero is allowed", 0, false},
		{"small positive", 1e-10, false},
		{"one", 1, true},
		{"above one", 1.5, true},
		{"negative", -1e-10, true},
		{"NaN", math.NaN(), true},
	} {
		err := CheckDelta("test", tc.delta)
		if (err != nil) != tc.wantErr {
			t.Errorf("CheckDelta: when %s got error %v, wantErr %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckDeltaStrict(t *testing.T) {
	if err := CheckDeltaStrict("test", 0); err == nil {
		t.Errorf("CheckDeltaStrict: zero delta should be rejected")
	}
	if err := CheckDeltaStrict("test", 1e-5); err != nil {
		t.Errorf("CheckDeltaStrict: got error %v for a valid delta", err)
	}
}

func TestCheckNoDelta(t *testing.T) {
	if err := CheckNoDelta("test", 0); err != nil {
		t.Errorf("CheckNoDelta: got error %v for delta 0", err)
	}
	if err := CheckNoDelta("test", 1e-10); err == nil {
		t.Errorf("CheckNoDelta: nonzero delta should be rejected")
	}
}

func TestCheckOrder(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		order   float64
		wantErr bool
	}{
		{"above one", 1.25, false},
		{"integer order", 32, false},
		{"exactly one", 1, true},
		{"below one", 0.5, true},
		{"infinite", math.Inf(1), true},
	} {
		err := CheckOrder("test", tc.order)
		if (err != nil) != tc.wantErr {
			t.Errorf("CheckOrder: when %s got error %v, wantErr %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckSampleRate(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		rate    float64
		wantErr bool
	}{
		{"full sample", 1, false},
		{"one percent", 0.01, false},
		{"zero", 0, true},
		{"above one", 1.01, true},
		{"negative", -0.5, true},
	} {
		err := CheckSampleRate("test", tc.rate)
		if (err != nil) != tc.wantErr {
			t.Errorf("CheckSampleRate: when %s got error %v, wantErr %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckWeights(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		weights []float64
		wantErr bool
	}{
		{"uniform", []float64{0.25, 0.25, 0.25, 0.25}, false},
		{"skewed", []float64{0.7, 0.2, 0.1}, false},
		{"zero weight", []float64{0, 1}, false},
		{"does not sum to one", []float64{0.5, 0.4}, true},
		{"contains negative", []float64{1.5, -0.5}, true},
		{"empty", nil, true},
	} {
		err := CheckWeights("test", tc.weights)
		if (err != nil) != tc.wantErr {
			t.Errorf("CheckWeights: when %s got error %v, wantErr %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestCheckGroupSize(t *testing.T) {
	if err := CheckGroupSize("test", 1); err != nil {
		t.Errorf("CheckGroupSize: got error %v for size 1", err)
	}
	if err := CheckGroupSize("test", 0); err == nil {
		t.Errorf("CheckGroupSize: size 0 should be rejected")
	}
}

func TestCheckThreshold(t *testing.T) {
	for _, tc := range []struct {
		desc      string
		threshold float64
		wantErr   bool
	}{
		{"half", 0.5, false},
		{"full budget", 1, false},
		{"zero", 0, true},
		{"above one", 1.1, true},
	} {
		err := CheckThreshold("test", tc.threshold)
		if (err != nil) != tc.wantErr {
			t.Errorf("CheckThreshold: when %s got error %v, wantErr %t", tc.desc, err, tc.wantErr)
		}
	}
}
