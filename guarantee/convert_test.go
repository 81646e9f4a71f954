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
	"errors"
	"math"
	"testing"

	"github.com/dplib/accounting/dperr"
)

func TestPureDPToApproxDPIsExact(t *testing.T) {
	g, _ := NewPureDP(ln3)
	conv, err := g.To(ApproxDP, 0)
	if err != nil {
		t.Fatalf("To(ApproxDP): got error %v", err)
	}
	if !conv.Exact {
		t.Errorf("To(ApproxDP): conversion should be exact")
	}
	if conv.Guarantee.Epsilon() != ln3 || conv.Guarantee.Delta() != 0 {
		t.Errorf("To(ApproxDP): got (%f, %e), want (%f, 0)", conv.Guarantee.Epsilon(), conv.Guarantee.Delta(), ln3)
	}
}

func TestApproxDPToPureDP(t *testing.T) {
	exact, _ := NewApproxDP(ln3, 0)
	conv, err := exact.To(PureDP, 0)
	if err != nil {
		t.Fatalf("To(PureDP): got error %v for delta 0", err)
	}
	if !conv.Exact || conv.Guarantee.Epsilon() != ln3 {
		t.Errorf("To(PureDP): got (%+v), want exact epsilon %f", conv, ln3)
	}

	lossy, _ := NewApproxDP(ln3, tenten)
	if _, err := lossy.To(PureDP, 0); !errors.Is(err, dperr.ErrConversion) {
		t.Errorf("To(PureDP): nonzero delta got %v, want a conversion error", err)
	}
}

func TestZCDPToApproxDP(t *testing.T) {
	rho := 0.25
	delta := 1e-6
	g, _ := NewZCDP(rho)
	conv, err := g.To(ApproxDP, delta)
	if err != nil {
		t.Fatalf("To(ApproxDP): got error %v", err)
	}
	want := rho + 2*math.Sqrt(rho*math.Log(1/delta))
	if !ApproxEqual(conv.Guarantee.Epsilon(), want) {
		t.Errorf("To(ApproxDP): got epsilon %f, want %f", conv.Guarantee.Epsilon(), want)
	}
	if conv.Guarantee.Delta() != delta {
		t.Errorf("To(ApproxDP): got delta %e, want %e", conv.Guarantee.Delta(), delta)
	}
	if conv.Exact {
		t.Errorf("To(ApproxDP): tail-bound conversion must not be flagged exact")
	}
}

func TestGDPToZCDP(t *testing.T) {
	mu := 1.5
	g, _ := NewGDP(mu)
	conv, err := g.To(ZCDP, 0)
	if err != nil {
		t.Fatalf("To(ZCDP): got error %v", err)
	}
	if want := mu * mu / 2; !ApproxEqual(conv.Guarantee.Rho(), want) {
		t.Errorf("To(ZCDP): got rho %f, want %f", conv.Guarantee.Rho(), want)
	}
}

func TestPureDPToZCDP(t *testing.T) {
	g, _ := NewPureDP(2)
	conv, err := g.To(ZCDP, 0)
	if err != nil {
		t.Fatalf("To(ZCDP): got error %v", err)
	}
	if want := 2.0; !ApproxEqual(conv.Guarantee.Rho(), want) {
		t.Errorf("To(ZCDP): got rho %f, want %f", conv.Guarantee.Rho(), want)
	}
}

func TestRDPToApproxDPPicksOptimalOrder(t *testing.T) {
	// For the curve of a Gaussian mechanism, eps(alpha) = alpha*rho, the
	// candidate eps(alpha) + log(1/delta)/(alpha-1) is minimized near
	// alpha = 1 + sqrt(log(1/delta)/rho).
	rho := 0.01
	delta := 1e-5
	var curve []RDPPoint
	for _, a := range DefaultOrders() {
		curve = append(curve, RDPPoint{Order: a, Epsilon: a * rho})
	}
	g, _ := NewRDP(curve)
	conv, err := g.To(ApproxDP, delta)
	if err != nil {
		t.Fatalf("To(ApproxDP): got error %v", err)
	}
	// The search result can never beat the unconstrained minimum over all
	// real orders, 2 sqrt(rho log(1/delta)) + rho, and on this grid it
	// should come close.
	lower := rho + 2*math.Sqrt(rho*math.Log(1/delta))
	if conv.Guarantee.Epsilon() < lower-tenten {
		t.Errorf("To(ApproxDP): epsilon %f below the analytic lower bound %f", conv.Guarantee.Epsilon(), lower)
	}
	if conv.Guarantee.Epsilon() > lower*1.01 {
		t.Errorf("To(ApproxDP): epsilon %f more than 1%% above the analytic bound %f", conv.Guarantee.Epsilon(), lower)
	}
	if conv.Order <= 1 {
		t.Errorf("To(ApproxDP): winning order %f not recorded", conv.Order)
	}
}

func TestInvalidConversionsFail(t *testing.T) {
	pure, _ := NewPureDP(1)
	zcdp, _ := NewZCDP(0.5)
	rdp, _ := NewRDP([]RDPPoint{{Order: 2, Epsilon: 0.1}})
	for _, tc := range []struct {
		desc   string
		g      Guarantee
		target Model
	}{
		{"PureDP to GDP", pure, GDP},
		{"ZCDP to PureDP", zcdp, PureDP},
		{"ZCDP to GDP", zcdp, GDP},
		{"RDP to ZCDP", rdp, ZCDP},
		{"RDP to GDP", rdp, GDP},
	} {
		if _, err := tc.g.To(tc.target, 1e-6); !errors.Is(err, dperr.ErrConversion) {
			t.Errorf("To: %s got %v, want a conversion error", tc.desc, err)
		}
	}
}

func TestToSameModelIsIdentity(t *testing.T) {
	g, _ := NewZCDP(0.5)
	conv, err := g.To(ZCDP, 0)
	if err != nil {
		t.Fatalf("To(ZCDP): got error %v", err)
	}
	if !conv.Exact || !conv.Guarantee.Equal(g) {
		t.Errorf("To: same-model conversion should be the exact identity, got %+v", conv)
	}
}

func TestOptimalRDPEpsilonSkipsUnstableOrders(t *testing.T) {
	curve := []RDPPoint{
		{Order: 2, Epsilon: math.Inf(1)},
		{Order: 4, Epsilon: 0.5},
	}
	eps, order, ok := OptimalRDPEpsilon(curve, 1e-5)
	if !ok {
		t.Fatalf("OptimalRDPEpsilon: got ok = false, want a stable order")
	}
	if order != 4 {
		t.Errorf("OptimalRDPEpsilon: got order %f, want 4", order)
	}
	want := 0.5 + math.Log(1e5)/3
	if !ApproxEqual(eps, want) {
		t.Errorf("OptimalRDPEpsilon: got epsilon %f, want %f", eps, want)
	}

	if _, _, ok := OptimalRDPEpsilon([]RDPPoint{{Order: 2, Epsilon: math.Inf(1)}}, 1e-5); ok {
		t.Errorf("OptimalRDPEpsilon: got ok = true with no stable order")
	}
}
