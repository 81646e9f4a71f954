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

// Package moments implements a moments accountant: a stateful accumulator of
// Rényi-divergence losses across repeated mechanism applications, typically
// the subsampled Gaussian mechanism, convertible at any point into the
// tightest (ε,δ) guarantee by minimizing over the tracked orders.
//
// All accumulation happens in log space so that many repetitions cannot
// overflow. Orders whose accumulated loss becomes non-finite are flagged and
// excluded from the optimal-order search instead of poisoning the bound;
// the search still returns a valid, if less tight, result. The set of
// candidate orders is fixed at construction, so the search never performs
// unbounded work.
package moments

import (
	"fmt"
	"sync"

	log "github.com/golang/glog"

	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/composition"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

// Accountant accumulates per-order Rényi losses. It is safe for concurrent
// use; the accountant is the unit of mutual exclusion.
type Accountant struct {
	mu       sync.Mutex
	orders   []float64
	rdp      []float64
	unstable []bool
	steps    int
}

// New returns an accountant tracking the given Rényi orders, or the standard
// grid (guarantee.DefaultOrders) when none are supplied. Orders must be
// unique and strictly greater than 1.
func New(orders ...float64) (*Accountant, error) {
	if len(orders) == 0 {
		orders = guarantee.DefaultOrders()
	}
	seen := map[float64]bool{}
	for _, a := range orders {
		if err := checks.CheckOrder("moments.New", a); err != nil {
			return nil, err
		}
		if seen[a] {
			return nil, fmt.Errorf("moments.New: %w: duplicate order %f", dperr.ErrValidation, a)
		}
		seen[a] = true
	}
	a := &Accountant{
		orders:   append([]float64(nil), orders...),
		rdp:      make([]float64, len(orders)),
		unstable: make([]bool, len(orders)),
	}
	return a, nil
}

// Orders returns the fixed candidate orders of this accountant.
func (a *Accountant) Orders() []float64 {
	return append([]float64(nil), a.orders...)
}

// Steps returns how many accumulation steps have been recorded.
func (a *Accountant) Steps() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.steps
}

// AccumulateGaussian records steps applications of the Gaussian mechanism
// with the given noise multiplier (σ per unit of L2 sensitivity), each
// applied to an independent uniform subsample of rate sampleRate drawn
// without replacement. A rate of 1 means no subsampling.
func (a *Accountant) AccumulateGaussian(noiseMultiplier, sampleRate float64, steps int) error {
	if err := checks.CheckSensitivity("AccumulateGaussian", noiseMultiplier); err != nil {
		return err
	}
	if err := checks.CheckSampleRate("AccumulateGaussian", sampleRate); err != nil {
		return err
	}
	if steps < 1 {
		return fmt.Errorf("AccumulateGaussian: %w: steps is %d, must be at least 1", dperr.ErrValidation, steps)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, order := range a.orders {
		if a.unstable[i] {
			continue
		}
		eps := GaussianRDP(noiseMultiplier, sampleRate, order)
		a.accumulateLocked(i, float64(steps)*eps)
	}
	a.steps += steps
	return nil
}

// AccumulateRDP records one application of an arbitrary mechanism described
// by an upper-bounding RDP curve. Orders tracked by the accountant but
// missing from the curve become unstable: with no bound available for them,
// they can no longer participate in the search.
func (a *Accountant) AccumulateRDP(curve []guarantee.RDPPoint) error {
	if len(curve) == 0 {
		return fmt.Errorf("AccumulateRDP: %w: curve must not be empty", dperr.ErrValidation)
	}
	byOrder := make(map[float64]float64, len(curve))
	for _, p := range curve {
		if err := checks.CheckOrder("AccumulateRDP", p.Order); err != nil {
			return err
		}
		if err := checks.CheckEpsilon("AccumulateRDP", p.Epsilon); err != nil {
			return err
		}
		byOrder[p.Order] = p.Epsilon
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, order := range a.orders {
		if a.unstable[i] {
			continue
		}
		eps, ok := byOrder[order]
		if !ok {
			a.markUnstableLocked(i, "no bound supplied for the order")
			continue
		}
		a.accumulateLocked(i, eps)
	}
	a.steps++
	return nil
}

func (a *Accountant) accumulateLocked(i int, eps float64) {
	next := a.rdp[i] + eps
	if !isFinite(next) {
		a.markUnstableLocked(i, "accumulated loss is no longer finite")
		return
	}
	a.rdp[i] = next
}

func (a *Accountant) markUnstableLocked(i int, reason string) {
	if !a.unstable[i] {
		log.Warningf("moments: excluding order %f from the search: %s", a.orders[i], reason)
	}
	a.unstable[i] = true
}

// Curve returns the accumulated RDP curve over the stable orders. It does
// not mutate the accountant.
func (a *Accountant) Curve() []guarantee.RDPPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.curveLocked()
}

func (a *Accountant) curveLocked() []guarantee.RDPPoint {
	var curve []guarantee.RDPPoint
	for i, order := range a.orders {
		if a.unstable[i] {
			continue
		}
		curve = append(curve, guarantee.RDPPoint{Order: order, Epsilon: a.rdp[i]})
	}
	return curve
}

// Guarantee converts the accumulated moments into the tightest (ε,δ)
// guarantee at the given δ by minimizing ε(α) + log(1/δ)/(α-1) over the
// stable orders. The accountant state is not mutated. The Result is flagged
// unstable when any order had to be excluded.
func (a *Accountant) Guarantee(delta float64) (composition.Result, error) {
	if err := checks.CheckDeltaStrict("moments.Guarantee", delta); err != nil {
		return composition.Result{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	curve := a.curveLocked()
	eps, _, ok := guarantee.OptimalRDPEpsilon(curve, delta)
	if !ok {
		return composition.Result{}, fmt.Errorf("moments.Guarantee: %w: every tracked order is numerically unstable", dperr.ErrComposition)
	}
	out, err := guarantee.NewApproxDP(eps, delta)
	if err != nil {
		return composition.Result{}, err
	}
	stable := true
	for _, u := range a.unstable {
		if u {
			stable = false
			break
		}
	}
	return composition.Result{
		Guarantee: out,
		Method:    composition.MethodMoments,
		Stable:    stable,
		Events:    a.steps,
	}, nil
}

// Reset clears all accumulated moments and stability flags. It is used when
// a scope boundary closes a privacy-consuming task.
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.rdp {
		a.rdp[i] = 0
		a.unstable[i] = false
	}
	a.steps = 0
}
