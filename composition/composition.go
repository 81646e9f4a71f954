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

// Package composition implements the composition theorems of differential
// privacy as pure, stateless functions over guarantees.
//
// Sequential composition is exact and always valid; it is the safe fallback.
// Advanced composition is applied only when it is provably tighter: the
// bound is always compared against basic composition and the minimum wins,
// with the winning method tagged in the Result. Parallel composition over
// disjoint partitions takes the coordinate-wise maximum and deliberately
// shares no code path with sequential composition.
//
// Mixing guarantee models in one call is allowed only when an exact common
// model exists (PureDP embeds exactly into ApproxDP). Otherwise the call
// fails with an error wrapping dperr.ErrComposition rather than silently
// approximating.
package composition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

// Method identifies the composition rule that produced a Result.
type Method int

// Composition methods recorded in Result metadata.
const (
	MethodBasic Method = iota
	MethodAdvanced
	MethodParallel
	MethodGroup
	MethodSubsample
	MethodMoments
)

var methodNames = map[Method]string{
	MethodBasic:     "basic",
	MethodAdvanced:  "advanced",
	MethodParallel:  "parallel",
	MethodGroup:     "group",
	MethodSubsample: "subsample",
	MethodMoments:   "moments",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Result is an aggregated guarantee plus metadata about how it was obtained.
// Superseded results are retained by the ledger for audit; they are never
// mutated in place.
type Result struct {
	// Guarantee is the aggregated privacy claim.
	Guarantee guarantee.Guarantee `json:"guarantee"`
	// Method is the rule that produced the winning bound.
	Method Method `json:"method"`
	// Slack is the additional failure probability δ' consumed by an
	// approximate method, 0 for exact methods.
	Slack float64 `json:"slack,omitempty"`
	// Stable is false when a numeric fallback occurred while computing the
	// bound (the bound is still valid, just not the tightest).
	Stable bool `json:"stable"`
	// Events is the number of guarantees that went into the composition.
	Events int `json:"events"`
}

// commonModel classifies the inputs for sequential-style composition.
// PureDP and ApproxDP share the exact embedding PureDP(ε) = ApproxDP(ε, 0);
// every other mix has no safe common model.
func commonModel(label string, gs []guarantee.Guarantee) (guarantee.Model, error) {
	if len(gs) == 0 {
		return guarantee.Unknown, fmt.Errorf("%s: %w: no guarantees to compose", label, dperr.ErrValidation)
	}
	model := gs[0].Model()
	for _, g := range gs[1:] {
		m := g.Model()
		if m == model {
			continue
		}
		bothEpsDelta := (m == guarantee.PureDP || m == guarantee.ApproxDP) &&
			(model == guarantee.PureDP || model == guarantee.ApproxDP)
		if bothEpsDelta {
			model = guarantee.ApproxDP
			continue
		}
		return guarantee.Unknown, fmt.Errorf("%s: %w: cannot compose %v with %v without a safe common model", label, dperr.ErrComposition, model, m)
	}
	return model, nil
}

// Sequential applies the basic sequential composition theorem. For PureDP
// and ApproxDP inputs, epsilons and deltas sum exactly. Homogeneous ZCDP,
// GDP and RDP inputs compose in their native representations (ρ adds, μ adds
// in L2, RDP curves add pointwise over their common orders). The result is
// exact in every supported case.
func Sequential(gs []guarantee.Guarantee) (Result, error) {
	model, err := commonModel("Sequential", gs)
	if err != nil {
		return Result{}, err
	}
	var out guarantee.Guarantee
	switch model {
	case guarantee.PureDP:
		epsilons := make([]float64, len(gs))
		for i, g := range gs {
			epsilons[i] = g.Epsilon()
		}
		out, err = guarantee.NewPureDP(floats.Sum(epsilons))
	case guarantee.ApproxDP:
		epsilons := make([]float64, len(gs))
		deltas := make([]float64, len(gs))
		for i, g := range gs {
			epsilons[i] = g.Epsilon()
			deltas[i] = g.Delta()
		}
		out, err = guarantee.NewApproxDP(floats.Sum(epsilons), floats.Sum(deltas))
	case guarantee.ZCDP:
		rho := 0.0
		for _, g := range gs {
			rho += g.Rho()
		}
		out, err = guarantee.NewZCDP(rho)
	case guarantee.GDP:
		muSq := 0.0
		for _, g := range gs {
			muSq += g.Mu() * g.Mu()
		}
		out, err = guarantee.NewGDP(math.Sqrt(muSq))
	case guarantee.RDP:
		out, err = sumRDPCurves(gs)
	default:
		return Result{}, fmt.Errorf("Sequential: %w: unsupported model %v", dperr.ErrComposition, model)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Guarantee: out, Method: MethodBasic, Stable: true, Events: len(gs)}, nil
}

// sumRDPCurves adds RDP curves pointwise over the orders that all curves
// share. Curves with disjoint supports cannot be composed exactly.
func sumRDPCurves(gs []guarantee.Guarantee) (guarantee.Guarantee, error) {
	sums := map[float64]float64{}
	counts := map[float64]int{}
	for _, g := range gs {
		for _, p := range g.Curve() {
			sums[p.Order] += p.Epsilon
			counts[p.Order]++
		}
	}
	var curve []guarantee.RDPPoint
	for order, eps := range sums {
		if counts[order] == len(gs) {
			curve = append(curve, guarantee.RDPPoint{Order: order, Epsilon: eps})
		}
	}
	if len(curve) == 0 {
		return guarantee.Guarantee{}, fmt.Errorf("Sequential: %w: RDP curves share no common order", dperr.ErrComposition)
	}
	return guarantee.NewRDP(curve)
}

// Parallel applies the parallel composition theorem for mechanisms applied
// to disjoint partitions of the input domain: the aggregated loss is the
// coordinate-wise maximum across partitions, not the sum. The caller is
// responsible for the disjointness of the partitions.
func Parallel(gs []guarantee.Guarantee) (Result, error) {
	model, err := commonModel("Parallel", gs)
	if err != nil {
		return Result{}, err
	}
	var out guarantee.Guarantee
	switch model {
	case guarantee.PureDP:
		eps := 0.0
		for _, g := range gs {
			eps = math.Max(eps, g.Epsilon())
		}
		out, err = guarantee.NewPureDP(eps)
	case guarantee.ApproxDP:
		eps, delta := 0.0, 0.0
		for _, g := range gs {
			eps = math.Max(eps, g.Epsilon())
			delta = math.Max(delta, g.Delta())
		}
		out, err = guarantee.NewApproxDP(eps, delta)
	case guarantee.ZCDP:
		rho := 0.0
		for _, g := range gs {
			rho = math.Max(rho, g.Rho())
		}
		out, err = guarantee.NewZCDP(rho)
	case guarantee.GDP:
		mu := 0.0
		for _, g := range gs {
			mu = math.Max(mu, g.Mu())
		}
		out, err = guarantee.NewGDP(mu)
	default:
		return Result{}, fmt.Errorf("Parallel: %w: unsupported model %v", dperr.ErrComposition, model)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Guarantee: out, Method: MethodParallel, Stable: true, Events: len(gs)}, nil
}

// Group lifts a guarantee for individuals to a guarantee for any group of
// size members. The δ amplification uses the closed-form geometric series
// δ·(e^{kε}-1)/(e^ε-1) rather than composing the mechanism against itself
// k times.
func Group(g guarantee.Guarantee, size int) (Result, error) {
	if err := checks.CheckGroupSize("Group", size); err != nil {
		return Result{}, err
	}
	k := float64(size)
	var out guarantee.Guarantee
	var err error
	switch g.Model() {
	case guarantee.PureDP:
		out, err = guarantee.NewPureDP(k * g.Epsilon())
	case guarantee.ApproxDP:
		eps := g.Epsilon()
		delta := g.Delta()
		if delta != 0 && eps != 0 {
			delta *= (math.Exp(k*eps) - 1) / (math.Exp(eps) - 1)
		} else {
			delta *= k
		}
		if delta >= 1 {
			return Result{}, fmt.Errorf("Group: %w: group size %d amplifies delta to %e, not a valid guarantee", dperr.ErrComposition, size, delta)
		}
		out, err = guarantee.NewApproxDP(k*eps, delta)
	case guarantee.ZCDP:
		out, err = guarantee.NewZCDP(k * k * g.Rho())
	case guarantee.GDP:
		out, err = guarantee.NewGDP(k * g.Mu())
	default:
		return Result{}, fmt.Errorf("Group: %w: group privacy is not defined for model %v", dperr.ErrComposition, g.Model())
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Guarantee: out, Method: MethodGroup, Stable: true, Events: 1}, nil
}
