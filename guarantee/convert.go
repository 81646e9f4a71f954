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
	"fmt"
	"math"

	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/dperr"
)

// DefaultOrders returns the standard grid of Rényi divergence orders used
// when a conversion has to materialize an RDP curve: a few fractional orders
// below 2 plus the integers 2 through 64. The grid is bounded so that any
// search over it performs a fixed amount of work.
func DefaultOrders() []float64 {
	orders := []float64{1.25, 1.5, 1.75}
	for a := 2; a <= 64; a++ {
		orders = append(orders, float64(a))
	}
	return orders
}

// Conversion is the result of mapping a Guarantee into another model.
type Conversion struct {
	// Guarantee is the converted claim. For lossy conversions it is the
	// tightest valid bound derivable from the input representation; it never
	// understates the privacy loss.
	Guarantee Guarantee
	// Exact reports whether the conversion is an equivalence rather than an
	// upper bound.
	Exact bool
	// Order is the Rényi order that won an optimal-order search, or 0 when no
	// search was involved.
	Order float64
	// Note documents the bound used by a lossy conversion.
	Note string
}

// To converts g into the target model.
//
// Exact conversions: PureDP ↔ ApproxDP(ε, 0). Lossy conversions use the
// standard tail bounds (zCDP → ApproxDP, RDP → ApproxDP via the
// optimal-order search, GDP → ApproxDP through the zCDP bridge) and are
// flagged as inexact with the bound recorded in Note. targetDelta is the δ
// of the resulting guarantee when converting a divergence-based model to
// ApproxDP; it is ignored by conversions that do not need it.
//
// Requesting a mapping that has no valid form, such as PureDP → GDP, fails
// with an error wrapping dperr.ErrConversion.
func (g Guarantee) To(target Model, targetDelta float64) (Conversion, error) {
	if g.model == Unknown {
		return Conversion{}, fmt.Errorf("Guarantee.To: %w: zero-value guarantee", dperr.ErrValidation)
	}
	if g.model == target {
		return Conversion{Guarantee: g, Exact: true}, nil
	}
	switch g.model {
	case PureDP:
		return g.fromPureDP(target)
	case ApproxDP:
		return g.fromApproxDP(target)
	case ZCDP:
		return g.fromZCDP(target, targetDelta)
	case RDP:
		return g.fromRDP(target, targetDelta)
	case GDP:
		return g.fromGDP(target, targetDelta)
	}
	return Conversion{}, conversionError(g.model, target)
}

func conversionError(from, to Model) error {
	return fmt.Errorf("Guarantee.To: %w: no valid mapping from %v to %v", dperr.ErrConversion, from, to)
}

func (g Guarantee) fromPureDP(target Model) (Conversion, error) {
	switch target {
	case ApproxDP:
		out, err := NewApproxDP(g.epsilon, 0)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Exact: true}, nil
	case ZCDP:
		// ε-DP implies (ε²/2)-zCDP.
		out, err := NewZCDP(g.epsilon * g.epsilon / 2)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Note: "rho = epsilon^2/2"}, nil
	case RDP:
		// Via the zCDP implication, capped by the max divergence ε.
		rho := g.epsilon * g.epsilon / 2
		var curve []RDPPoint
		for _, a := range DefaultOrders() {
			curve = append(curve, RDPPoint{Order: a, Epsilon: math.Min(g.epsilon, a*rho)})
		}
		out, err := NewRDP(curve)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Note: "eps(alpha) = min(epsilon, alpha*epsilon^2/2)"}, nil
	}
	return Conversion{}, conversionError(g.model, target)
}

func (g Guarantee) fromApproxDP(target Model) (Conversion, error) {
	switch target {
	case PureDP:
		if g.delta != 0 {
			return Conversion{}, fmt.Errorf("Guarantee.To: %w: ApproxDP with delta %e cannot be represented as PureDP", dperr.ErrConversion, g.delta)
		}
		out, err := NewPureDP(g.epsilon)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Exact: true}, nil
	case ZCDP:
		if g.delta == 0 {
			out, err := NewZCDP(g.epsilon * g.epsilon / 2)
			if err != nil {
				return Conversion{}, err
			}
			return Conversion{Guarantee: out, Note: "rho = epsilon^2/2"}, nil
		}
		// Loose upper bound, inverse of the zCDP tail bound.
		term := g.epsilon + math.Log(1/g.delta)
		out, err := NewZCDP(term * term / (2 * math.Log(1/g.delta)))
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Note: "rho = (epsilon+log(1/delta))^2 / (2 log(1/delta))"}, nil
	}
	return Conversion{}, conversionError(g.model, target)
}

func (g Guarantee) fromZCDP(target Model, targetDelta float64) (Conversion, error) {
	switch target {
	case ApproxDP:
		if err := checks.CheckDeltaStrict("Guarantee.To", targetDelta); err != nil {
			return Conversion{}, err
		}
		// ρ-zCDP implies (ρ + 2·sqrt(ρ·log(1/δ)), δ)-DP.
		eps := g.rho + 2*math.Sqrt(g.rho*math.Log(1/targetDelta))
		out, err := NewApproxDP(eps, targetDelta)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Note: "epsilon = rho + 2 sqrt(rho log(1/delta))"}, nil
	case RDP:
		// ρ-zCDP is exactly (α, α·ρ)-RDP for all α > 1.
		var curve []RDPPoint
		for _, a := range DefaultOrders() {
			curve = append(curve, RDPPoint{Order: a, Epsilon: a * g.rho})
		}
		out, err := NewRDP(curve)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Exact: true, Note: "eps(alpha) = alpha*rho"}, nil
	}
	return Conversion{}, conversionError(g.model, target)
}

func (g Guarantee) fromRDP(target Model, targetDelta float64) (Conversion, error) {
	switch target {
	case ApproxDP:
		if err := checks.CheckDeltaStrict("Guarantee.To", targetDelta); err != nil {
			return Conversion{}, err
		}
		eps, order, ok := OptimalRDPEpsilon(g.curve, targetDelta)
		if !ok {
			return Conversion{}, fmt.Errorf("Guarantee.To: %w: RDP curve has no numerically stable order", dperr.ErrConversion)
		}
		out, err := NewApproxDP(eps, targetDelta)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{
			Guarantee: out,
			Order:     order,
			Note:      "epsilon = min over alpha of eps(alpha) + log(1/delta)/(alpha-1)",
		}, nil
	}
	return Conversion{}, conversionError(g.model, target)
}

func (g Guarantee) fromGDP(target Model, targetDelta float64) (Conversion, error) {
	switch target {
	case ZCDP:
		// μ-GDP implies (μ²/2)-zCDP.
		out, err := NewZCDP(g.mu * g.mu / 2)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Note: "rho = mu^2/2"}, nil
	case RDP:
		var curve []RDPPoint
		rho := g.mu * g.mu / 2
		for _, a := range DefaultOrders() {
			curve = append(curve, RDPPoint{Order: a, Epsilon: a * rho})
		}
		out, err := NewRDP(curve)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Note: "eps(alpha) = alpha*mu^2/2"}, nil
	case ApproxDP:
		if err := checks.CheckDeltaStrict("Guarantee.To", targetDelta); err != nil {
			return Conversion{}, err
		}
		rho := g.mu * g.mu / 2
		eps := rho + 2*math.Sqrt(rho*math.Log(1/targetDelta))
		out, err := NewApproxDP(eps, targetDelta)
		if err != nil {
			return Conversion{}, err
		}
		return Conversion{Guarantee: out, Note: "zCDP bridge: rho = mu^2/2, epsilon = rho + 2 sqrt(rho log(1/delta))"}, nil
	}
	return Conversion{}, conversionError(g.model, target)
}

// OptimalRDPEpsilon performs the optimal-order search over an RDP curve:
// it minimizes eps(α) + log(1/δ)/(α-1) over the curve's orders. Orders whose
// value is NaN or +∞ are excluded from the search. It returns the minimal ε,
// the winning order, and whether any stable order was found.
func OptimalRDPEpsilon(curve []RDPPoint, delta float64) (eps, order float64, ok bool) {
	logInvDelta := math.Log(1 / delta)
	eps = math.Inf(1)
	for _, p := range curve {
		candidate := p.Epsilon + logInvDelta/(p.Order-1)
		if math.IsNaN(candidate) || math.IsInf(candidate, 0) {
			continue
		}
		if candidate < eps {
			eps = candidate
			order = p.Order
			ok = true
		}
	}
	if !ok {
		return 0, 0, false
	}
	return eps, order, true
}
