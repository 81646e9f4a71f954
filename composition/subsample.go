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

	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

// Subsample applies privacy amplification by subsampling: when a mechanism
// runs on a uniformly random subsample of rate q < 1 drawn without
// replacement, its guarantee tightens to
//
//	ε' = log(1 + q·(e^ε - 1)),  δ' = q·δ.
//
// The bound is only valid for sampling without replacement; the caller must
// assert that assumption explicitly through withoutReplacement — it is never
// inferred. A rate of 1 returns the guarantee unchanged.
func Subsample(g guarantee.Guarantee, rate float64, withoutReplacement bool) (Result, error) {
	if err := checks.CheckSampleRate("Subsample", rate); err != nil {
		return Result{}, err
	}
	if !withoutReplacement {
		return Result{}, fmt.Errorf("Subsample: %w: amplification requires the caller to assert sampling without replacement", dperr.ErrValidation)
	}
	if rate == 1 {
		return Result{Guarantee: g, Method: MethodSubsample, Stable: true, Events: 1}, nil
	}

	var out guarantee.Guarantee
	var err error
	switch g.Model() {
	case guarantee.PureDP:
		out, err = guarantee.NewPureDP(amplifiedEpsilon(g.Epsilon(), rate))
	case guarantee.ApproxDP:
		out, err = guarantee.NewApproxDP(amplifiedEpsilon(g.Epsilon(), rate), rate*g.Delta())
	default:
		return Result{}, fmt.Errorf("Subsample: %w: amplification by subsampling is not defined for model %v", dperr.ErrComposition, g.Model())
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Guarantee: out, Method: MethodSubsample, Stable: true, Events: 1}, nil
}

func amplifiedEpsilon(epsilon, rate float64) float64 {
	// math.Expm1/Log1p keep the computation accurate for small ε, where
	// q·(e^ε-1) is close to 0.
	return math.Log1p(rate * math.Expm1(epsilon))
}
