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

// Package guarantee represents formal privacy guarantees in several
// equivalent models and converts between them.
//
// A Guarantee is an immutable value object. It is constructed only through
// the validated factory functions; invalid parameters are rejected with an
// error wrapping dperr.ErrValidation. Recomposition replaces a Guarantee
// with a new one, it never mutates in place.
package guarantee

import (
	"fmt"
	"sort"

	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/dperr"
)

// Model is an enum type. Its values are the supported representations of a
// privacy guarantee.
type Model int

// Supported guarantee models.
const (
	Unknown Model = iota
	// PureDP is ε-differential privacy.
	PureDP
	// ApproxDP is (ε,δ)-approximate differential privacy.
	ApproxDP
	// ZCDP is ρ-zero-concentrated differential privacy.
	ZCDP
	// RDP is Rényi differential privacy, a curve of (α, ε(α)) points.
	RDP
	// GDP is Gaussian differential privacy, parameterized by μ.
	GDP
)

var modelNames = map[Model]string{
	Unknown:  "unknown",
	PureDP:   "pure_dp",
	ApproxDP: "approx_dp",
	ZCDP:     "zcdp",
	RDP:      "rdp",
	GDP:      "gdp",
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ModelFromString parses the snapshot tag of a model, e.g. "approx_dp".
func ModelFromString(s string) (Model, error) {
	for m, name := range modelNames {
		if name == s && m != Unknown {
			return m, nil
		}
	}
	return Unknown, fmt.Errorf("ModelFromString: %w: unknown model %q", dperr.ErrValidation, s)
}

// RDPPoint is a single point of a Rényi DP curve: the privacy loss ε(α) at
// divergence order α.
type RDPPoint struct {
	Order   float64 `json:"order"`
	Epsilon float64 `json:"epsilon"`
}

// Guarantee is an immutable privacy claim in one of the supported models.
// The zero value is not a valid Guarantee; use the New* factories.
type Guarantee struct {
	model   Model
	epsilon float64
	delta   float64
	rho     float64
	mu      float64
	curve   []RDPPoint
}

// NewPureDP returns a guarantee of ε-differential privacy.
func NewPureDP(epsilon float64) (Guarantee, error) {
	if err := checks.CheckEpsilon("NewPureDP", epsilon); err != nil {
		return Guarantee{}, err
	}
	return Guarantee{model: PureDP, epsilon: epsilon}, nil
}

// NewApproxDP returns a guarantee of (ε,δ)-approximate differential privacy.
func NewApproxDP(epsilon, delta float64) (Guarantee, error) {
	if err := checks.CheckEpsilon("NewApproxDP", epsilon); err != nil {
		return Guarantee{}, err
	}
	if err := checks.CheckDelta("NewApproxDP", delta); err != nil {
		return Guarantee{}, err
	}
	return Guarantee{model: ApproxDP, epsilon: epsilon, delta: delta}, nil
}

// NewZCDP returns a guarantee of ρ-zero-concentrated differential privacy.
func NewZCDP(rho float64) (Guarantee, error) {
	if err := checks.CheckRho("NewZCDP", rho); err != nil {
		return Guarantee{}, err
	}
	return Guarantee{model: ZCDP, rho: rho}, nil
}

// NewRDP returns a Rényi DP guarantee from a curve of (α, ε(α)) points.
// Orders must be unique and strictly greater than 1; every ε(α) must be
// nonnegative. The curve is stored sorted by order.
func NewRDP(curve []RDPPoint) (Guarantee, error) {
	if len(curve) == 0 {
		return Guarantee{}, fmt.Errorf("NewRDP: %w: curve must not be empty", dperr.ErrValidation)
	}
	sorted := make([]RDPPoint, len(curve))
	copy(sorted, curve)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for i, p := range sorted {
		if err := checks.CheckOrder("NewRDP", p.Order); err != nil {
			return Guarantee{}, err
		}
		if err := checks.CheckEpsilon("NewRDP", p.Epsilon); err != nil {
			return Guarantee{}, err
		}
		if i > 0 && sorted[i-1].Order == p.Order {
			return Guarantee{}, fmt.Errorf("NewRDP: %w: duplicate order %f", dperr.ErrValidation, p.Order)
		}
	}
	return Guarantee{model: RDP, curve: sorted}, nil
}

// NewGDP returns a guarantee of μ-Gaussian differential privacy.
func NewGDP(mu float64) (Guarantee, error) {
	if err := checks.CheckMu("NewGDP", mu); err != nil {
		return Guarantee{}, err
	}
	return Guarantee{model: GDP, mu: mu}, nil
}

// Model returns the representation this guarantee is expressed in.
func (g Guarantee) Model() Model { return g.model }

// Epsilon returns ε for PureDP and ApproxDP guarantees, 0 otherwise.
func (g Guarantee) Epsilon() float64 { return g.epsilon }

// Delta returns δ for ApproxDP guarantees, 0 otherwise.
func (g Guarantee) Delta() float64 { return g.delta }

// Rho returns ρ for ZCDP guarantees, 0 otherwise.
func (g Guarantee) Rho() float64 { return g.rho }

// Mu returns μ for GDP guarantees, 0 otherwise.
func (g Guarantee) Mu() float64 { return g.mu }

// Curve returns a copy of the RDP curve, sorted by order. It is nil for
// non-RDP guarantees.
func (g Guarantee) Curve() []RDPPoint {
	if g.curve == nil {
		return nil
	}
	out := make([]RDPPoint, len(g.curve))
	copy(out, g.curve)
	return out
}

func (g Guarantee) String() string {
	switch g.model {
	case PureDP:
		return fmt.Sprintf("PureDP(ε=%g)", g.epsilon)
	case ApproxDP:
		return fmt.Sprintf("ApproxDP(ε=%g, δ=%g)", g.epsilon, g.delta)
	case ZCDP:
		return fmt.Sprintf("ZCDP(ρ=%g)", g.rho)
	case RDP:
		return fmt.Sprintf("RDP(%d orders)", len(g.curve))
	case GDP:
		return fmt.Sprintf("GDP(μ=%g)", g.mu)
	}
	return "Guarantee(unknown)"
}

// Equal reports whether two guarantees are the same claim in the same model.
func (g Guarantee) Equal(other Guarantee) bool {
	if g.model != other.model {
		return false
	}
	switch g.model {
	case PureDP:
		return g.epsilon == other.epsilon
	case ApproxDP:
		return g.epsilon == other.epsilon && g.delta == other.delta
	case ZCDP:
		return g.rho == other.rho
	case GDP:
		return g.mu == other.mu
	case RDP:
		if len(g.curve) != len(other.curve) {
			return false
		}
		for i := range g.curve {
			if g.curve[i] != other.curve[i] {
				return false
			}
		}
		return true
	}
	return g.model == other.model
}
