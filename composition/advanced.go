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
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

// AdvancedSequential composes PureDP/ApproxDP guarantees sequentially and
// returns the tighter of the basic bound (Σε, Σδ) and the Dwork-Roth
// advanced bound
//
//	ε' = sqrt(2·log(1/δ')·Σεᵢ²) + Σεᵢ·(e^εᵢ - 1),  δ' extra failure probability
//
// which for k identical (ε,δ) events reduces to the familiar
// sqrt(2k·log(1/δ'))·ε + k·ε·(e^ε - 1). The advanced bound is only reported
// as the winner when its ε is strictly smaller than the basic ε; the Result
// tags which method won and records δ' as Slack when the advanced bound
// wins. deltaSlack must lie in (0, 1).
func AdvancedSequential(gs []guarantee.Guarantee, deltaSlack float64) (Result, error) {
	if err := checks.CheckDeltaStrict("AdvancedSequential", deltaSlack); err != nil {
		return Result{}, err
	}
	model, err := commonModel("AdvancedSequential", gs)
	if err != nil {
		return Result{}, err
	}
	if model != guarantee.PureDP && model != guarantee.ApproxDP {
		return Result{}, fmt.Errorf("AdvancedSequential: %w: advanced composition requires (ε,δ) guarantees, got %v", dperr.ErrComposition, model)
	}

	epsilons := make([]float64, len(gs))
	deltas := make([]float64, len(gs))
	squared := make([]float64, len(gs))
	tails := make([]float64, len(gs))
	for i, g := range gs {
		epsilons[i] = g.Epsilon()
		deltas[i] = g.Delta()
		squared[i] = g.Epsilon() * g.Epsilon()
		tails[i] = g.Epsilon() * (math.Exp(g.Epsilon()) - 1)
	}
	basicEps := floats.Sum(epsilons)
	basicDelta := floats.Sum(deltas)

	advEps := math.Sqrt(2*math.Log(1/deltaSlack)*floats.Sum(squared)) + floats.Sum(tails)
	advDelta := basicDelta + deltaSlack

	stable := true
	if math.IsNaN(advEps) || math.IsInf(advEps, 0) {
		// e^ε overflowed for a large ε; the basic bound still holds.
		advEps = math.Inf(1)
		stable = false
	}

	if advEps < basicEps && advDelta < 1 {
		out, err := guarantee.NewApproxDP(advEps, advDelta)
		if err != nil {
			return Result{}, err
		}
		return Result{Guarantee: out, Method: MethodAdvanced, Slack: deltaSlack, Stable: stable, Events: len(gs)}, nil
	}

	var out guarantee.Guarantee
	if model == guarantee.PureDP {
		out, err = guarantee.NewPureDP(basicEps)
	} else {
		out, err = guarantee.NewApproxDP(basicEps, basicDelta)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Guarantee: out, Method: MethodBasic, Stable: stable, Events: len(gs)}, nil
}

// Repeat composes the same guarantee k times under AdvancedSequential,
// without materializing k copies.
func Repeat(g guarantee.Guarantee, k int, deltaSlack float64) (Result, error) {
	if k < 1 {
		return Result{}, fmt.Errorf("Repeat: %w: repetition count %d must be at least 1", dperr.ErrValidation, k)
	}
	gs := make([]guarantee.Guarantee, k)
	for i := range gs {
		gs[i] = g
	}
	return AdvancedSequential(gs, deltaSlack)
}
