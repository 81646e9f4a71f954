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

package composition

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

var (
	ln3    = math.Log(3)
	tenten = math.Pow10(-10)
)

func ApproxEqual(x, y float64) bool {
	return cmp.Equal(x, y, cmpopts.EquateApprox(0, tenten))
}

func mustPureDP(t *testing.T, eps float64) guarantee.Guarantee {
	t.Helper()
	g, err := guarantee.NewPureDP(eps)
	if err != nil {
		t.Fatalf("NewPureDP(%f): %v", eps, err)
	}
	return g
}

func mustApproxDP(t *testing.T, eps, delta float64) guarantee.Guarantee {
	t.Helper()
	g, err := guarantee.NewApproxDP(eps, delta)
	if err != nil {
		t.Fatalf("NewApproxDP(%f, %e): %v", eps, delta, err)
	}
	return g
}

func TestSequentialPureDPSumsExactly(t *testing.T) {
	gs := []guarantee.Guarantee{
		mustPureDP(t, 0.4),
		mustPureDP(t, 0.4),
		mustPureDP(t, 0.2),
	}
	res, err := Sequential(gs)
	if err != nil {
		t.Fatalf("Sequential: got error %v", err)
	}
	if got := res.Guarantee.Epsilon(); got != 1.0 {
		t.Errorf("Sequential: got epsilon %f, want exactly 1.0", got)
	}
	if res.Method != MethodBasic || !res.Stable || res.Events != 3 {
		t.Errorf("Sequential: got metadata %+v, want basic, stable, 3 events", res)
	}
}

func TestSequentialIdenticalPureDPEqualsScaled(t *testing.T) {
	for _, k := range []int{1, 2, 7, 100} {
		gs := make([]guarantee.Guarantee, k)
		for i := range gs {
			gs[i] = mustPureDP(t, ln3)
		}
		res, err := Sequential(gs)
		if err != nil {
			t.Fatalf("Sequential: k = %d got error %v", k, err)
		}
		if want := float64(k) * ln3; !ApproxEqual(res.Guarantee.Epsilon(), want) {
			t.Errorf("Sequential: k = %d got epsilon %f, want %f", k, res.Guarantee.Epsilon(), want)
		}
	}
}

func TestSequentialApproxDPDeltasSumExactly(t *testing.T) {
	gs := []guarantee.Guarantee{
		mustApproxDP(t, 0.1, 1e-7),
		mustApproxDP(t, 0.2, 1e-7),
		mustApproxDP(t, 0.3, 1e-7),
	}
	res, err := Sequential(gs)
	if err != nil {
		t.Fatalf("Sequential: got error %v", err)
	}
	if got := res.Guarantee.Delta(); got != 3e-7 {
		t.Errorf("Sequential: got delta %e, want exactly 3e-7", got)
	}
}

func TestSequentialMixesPureIntoApprox(t *testing.T) {
	gs := []guarantee.Guarantee{
		mustPureDP(t, 0.5),
		mustApproxDP(t, 0.5, 1e-7),
	}
	res, err := Sequential(gs)
	if err != nil {
		t.Fatalf("Sequential: got error %v", err)
	}
	if res.Guarantee.Model() != guarantee.ApproxDP {
		t.Errorf("Sequential: got model %v, want ApproxDP", res.Guarantee.Model())
	}
	if !ApproxEqual(res.Guarantee.Epsilon(), 1.0) || res.Guarantee.Delta() != 1e-7 {
		t.Errorf("Sequential: got (%f, %e), want (1.0, 1e-7)", res.Guarantee.Epsilon(), res.Guarantee.Delta())
	}
}

func TestSequentialZCDPRhoAdds(t *testing.T) {
	z1, _ := guarantee.NewZCDP(0.1)
	z2, _ := guarantee.NewZCDP(0.25)
	res, err := Sequential([]guarantee.Guarantee{z1, z2})
	if err != nil {
		t.Fatalf("Sequential: got error %v", err)
	}
	if !ApproxEqual(res.Guarantee.Rho(), 0.35) {
		t.Errorf("Sequential: got rho %f, want 0.35", res.Guarantee.Rho())
	}
}

func TestSequentialGDPComposesInL2(t *testing.T) {
	g1, _ := guarantee.NewGDP(3)
	g2, _ := guarantee.NewGDP(4)
	res, err := Sequential([]guarantee.Guarantee{g1, g2})
	if err != nil {
		t.Fatalf("Sequential: got error %v", err)
	}
	if !ApproxEqual(res.Guarantee.Mu(), 5) {
		t.Errorf("Sequential: got mu %f, want 5 (sqrt(3^2+4^2))", res.Guarantee.Mu())
	}
}

func TestSequentialRDPAddsPointwise(t *testing.T) {
	r1, _ := guarantee.NewRDP([]guarantee.RDPPoint{{Order: 2, Epsilon: 0.1}, {Order: 4, Epsilon: 0.3}})
	r2, _ := guarantee.NewRDP([]guarantee.RDPPoint{{Order: 2, Epsilon: 0.2}, {Order: 4, Epsilon: 0.4}, {Order: 8, Epsilon: 1}})
	res, err := Sequential([]guarantee.Guarantee{r1, r2})
	if err != nil {
		t.Fatalf("Sequential: got error %v", err)
	}
	want := []guarantee.RDPPoint{{Order: 2, Epsilon: 0.1 + 0.2}, {Order: 4, Epsilon: 0.3 + 0.4}}
	if diff := cmp.Diff(want, res.Guarantee.Curve(), cmpopts.EquateApprox(0, tenten)); diff != "" {
		t.Errorf("Sequential: curve diff (-want +got):\n%s", diff)
	}
}

func TestSequentialRDPDisjointOrdersFail(t *testing.T) {
	r1, _ := guarantee.NewRDP([]guarantee.RDPPoint{{Order: 2, Epsilon: 0.1}})
	r2, _ := guarantee.NewRDP([]guarantee.RDPPoint{{Order: 4, Epsilon: 0.2}})
	if _, err := Sequential([]guarantee.Guarantee{r1, r2}); !errors.Is(err, dperr.ErrComposition) {
		t.Errorf("Sequential: disjoint RDP supports got %v, want a composition error", err)
	}
}

func TestSequentialRejectsUnsafeModelMix(t *testing.T) {
	z, _ := guarantee.NewZCDP(0.1)
	if _, err := Sequential([]guarantee.Guarantee{mustPureDP(t, 1), z}); !errors.Is(err, dperr.ErrComposition) {
		t.Errorf("Sequential: PureDP with ZCDP got %v, want a composition error", err)
	}
}

func TestSequentialEmptyInputFails(t *testing.T) {
	if _, err := Sequential(nil); !errors.Is(err, dperr.ErrValidation) {
		t.Errorf("Sequential: empty input got %v, want a validation error", err)
	}
}

func TestParallelTakesMaxNotSum(t *testing.T) {
	gs := []guarantee.Guarantee{
		mustApproxDP(t, ln3, 1e-7),
		mustApproxDP(t, ln3, 1e-7),
	}
	res, err := Parallel(gs)
	if err != nil {
		t.Fatalf("Parallel: got error %v", err)
	}
	if res.Guarantee.Epsilon() != ln3 || res.Guarantee.Delta() != 1e-7 {
		t.Errorf("Parallel: got (%f, %e), want the per-partition (%f, 1e-7)", res.Guarantee.Epsilon(), res.Guarantee.Delta(), ln3)
	}
	if res.Method != MethodParallel {
		t.Errorf("Parallel: got method %v, want %v", res.Method, MethodParallel)
	}
}

func TestParallelUnevenPartitions(t *testing.T) {
	res, err := Parallel([]guarantee.Guarantee{mustPureDP(t, 0.3), mustPureDP(t, 0.9), mustPureDP(t, 0.5)})
	if err != nil {
		t.Fatalf("Parallel: got error %v", err)
	}
	if res.Guarantee.Epsilon() != 0.9 {
		t.Errorf("Parallel: got epsilon %f, want 0.9", res.Guarantee.Epsilon())
	}
}

func TestGroupPureDPScalesEpsilon(t *testing.T) {
	res, err := Group(mustPureDP(t, 0.5), 3)
	if err != nil {
		t.Fatalf("Group: got error %v", err)
	}
	if !ApproxEqual(res.Guarantee.Epsilon(), 1.5) {
		t.Errorf("Group: got epsilon %f, want 1.5", res.Guarantee.Epsilon())
	}
}

func TestGroupApproxDPUsesGeometricSeries(t *testing.T) {
	eps, delta := 0.1, 1e-9
	k := 5
	res, err := Group(mustApproxDP(t, eps, delta), k)
	if err != nil {
		t.Fatalf("Group: got error %v", err)
	}
	// delta' = delta * (e^{k eps} - 1) / (e^eps - 1), the closed form of
	// delta * sum_{i=0..k-1} e^{i eps}.
	wantDelta := 0.0
	for i := 0; i < k; i++ {
		wantDelta += delta * math.Exp(float64(i)*eps)
	}
	if !cmp.Equal(res.Guarantee.Delta(), wantDelta, cmpopts.EquateApprox(1e-12, 0)) {
		t.Errorf("Group: got delta %e, want %e", res.Guarantee.Delta(), wantDelta)
	}
	if !ApproxEqual(res.Guarantee.Epsilon(), float64(k)*eps) {
		t.Errorf("Group: got epsilon %f, want %f", res.Guarantee.Epsilon(), float64(k)*eps)
	}
}

func TestGroupZCDPScalesQuadratically(t *testing.T) {
	z, _ := guarantee.NewZCDP(0.1)
	res, err := Group(z, 3)
	if err != nil {
		t.Fatalf("Group: got error %v", err)
	}
	if !ApproxEqual(res.Guarantee.Rho(), 0.9) {
		t.Errorf("Group: got rho %f, want 0.9 (k^2 rho)", res.Guarantee.Rho())
	}
}

func TestGroupSizeOneIsIdentity(t *testing.T) {
	g := mustApproxDP(t, ln3, 1e-7)
	res, err := Group(g, 1)
	if err != nil {
		t.Fatalf("Group: got error %v", err)
	}
	if !ApproxEqual(res.Guarantee.Epsilon(), g.Epsilon()) || !ApproxEqual(res.Guarantee.Delta(), g.Delta()) {
		t.Errorf("Group: size 1 changed the guarantee: got %v, want %v", res.Guarantee, g)
	}
}

func TestGroupRejectsDegenerateDelta(t *testing.T) {
	if _, err := Group(mustApproxDP(t, 5, 0.1), 20); !errors.Is(err, dperr.ErrComposition) {
		t.Errorf("Group: degenerate delta got %v, want a composition error", err)
	}
}

func TestGroupRDPFails(t *testing.T) {
	r, _ := guarantee.NewRDP([]guarantee.RDPPoint{{Order: 2, Epsilon: 0.1}})
	if _, err := Group(r, 2); !errors.Is(err, dperr.ErrComposition) {
		t.Errorf("Group: RDP input got %v, want a composition error", err)
	}
}
