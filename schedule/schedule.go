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

// Package schedule divides a privacy budget into per-step shares ahead of
// time. Shares are scaled in the coordinates their model composes in, so
// sequentially composing all shares reproduces the original budget up to
// floating-point rounding: linearly for PureDP, ApproxDP, zCDP and RDP, and
// in squared mu for GDP.
package schedule

import (
	"fmt"
	"math"

	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

// Split divides the budget into n equal shares.
func Split(budget guarantee.Guarantee, n int) ([]guarantee.Guarantee, error) {
	if n <= 0 {
		return nil, fmt.Errorf("schedule.Split: %w: number of shares must be positive, got %d", dperr.ErrValidation, n)
	}
	shares := make([]guarantee.Guarantee, n)
	for i := range shares {
		g, err := scale(budget, 1/float64(n))
		if err != nil {
			return nil, err
		}
		shares[i] = g
	}
	return shares, nil
}

// Weighted divides the budget proportionally to the given weights. The
// weights must be positive and sum to 1.
func Weighted(budget guarantee.Guarantee, weights []float64) ([]guarantee.Guarantee, error) {
	if err := checks.CheckWeights("schedule.Weighted", weights); err != nil {
		return nil, err
	}
	shares := make([]guarantee.Guarantee, len(weights))
	for i, w := range weights {
		g, err := scale(budget, w)
		if err != nil {
			return nil, err
		}
		shares[i] = g
	}
	return shares, nil
}

// Geometric divides the budget into n shares where each share is the given
// fraction of what remains, and the last share takes the remainder. Early
// steps receive geometrically more budget than late steps; a typical choice
// is fraction 0.5.
func Geometric(budget guarantee.Guarantee, n int, fraction float64) ([]guarantee.Guarantee, error) {
	if n <= 0 {
		return nil, fmt.Errorf("schedule.Geometric: %w: number of shares must be positive, got %d", dperr.ErrValidation, n)
	}
	if fraction <= 0 || fraction >= 1 {
		return nil, fmt.Errorf("schedule.Geometric: %w: fraction must be in (0, 1), got %v", dperr.ErrValidation, fraction)
	}
	shares := make([]guarantee.Guarantee, n)
	remaining := 1.0
	for i := 0; i < n; i++ {
		share := remaining * fraction
		if i == n-1 {
			share = remaining
		}
		g, err := scale(budget, share)
		if err != nil {
			return nil, err
		}
		shares[i] = g
		remaining -= share
	}
	return shares, nil
}

// Fraction returns the guarantee holding the given fraction of the budget.
// It is used to derive alert thresholds stated as a fraction of a declared
// maximum.
func Fraction(budget guarantee.Guarantee, fraction float64) (guarantee.Guarantee, error) {
	if err := checks.CheckThreshold("schedule.Fraction", fraction); err != nil {
		return guarantee.Guarantee{}, err
	}
	return scale(budget, fraction)
}

// scale returns the guarantee holding the given share of the budget, in the
// coordinates the budget's model composes in.
func scale(budget guarantee.Guarantee, share float64) (guarantee.Guarantee, error) {
	switch budget.Model() {
	case guarantee.PureDP:
		return guarantee.NewPureDP(budget.Epsilon() * share)
	case guarantee.ApproxDP:
		return guarantee.NewApproxDP(budget.Epsilon()*share, budget.Delta()*share)
	case guarantee.ZCDP:
		return guarantee.NewZCDP(budget.Rho() * share)
	case guarantee.GDP:
		// GDP composes in squared mu, so shares scale by sqrt(share).
		return guarantee.NewGDP(budget.Mu() * math.Sqrt(share))
	case guarantee.RDP:
		curve := budget.Curve()
		scaled := make([]guarantee.RDPPoint, len(curve))
		for i, p := range curve {
			scaled[i] = guarantee.RDPPoint{Order: p.Order, Epsilon: p.Epsilon * share}
		}
		return guarantee.NewRDP(scaled)
	}
	return guarantee.Guarantee{}, fmt.Errorf("schedule: %w: cannot schedule a guarantee of model %v", dperr.ErrValidation, budget.Model())
}
