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

package mechanism

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// sigmaAccuracy approximates the accuracy up to which the smallest sigma
// achieving a given (epsilon, delta) is determined by the binary search in
// sigmaForGaussian.
const sigmaAccuracy = 1e-3

// deltaForGaussian computes the level of (ε,δ)-approximate differential
// privacy achieved by the Gaussian mechanism with standard deviation sigma
// on data with the given L2 sensitivity, for fixed ε.
//
// The tight choice of δ (see https://arxiv.org/abs/1805.06530v2, Theorem 8)
// is:
//
//	δ(σ,s,ε) := Φ(s/(2σ) - εσ/s) - exp(ε)Φ(-s/(2σ) - εσ/s)
//
// where Φ is the standard Gaussian CDF. We pull out terms a := s/(2σ),
// b := εσ/s, c := exp(ε) so that δ(σ,s,ε) = Φ(a - b) - cΦ(-a - b), which
// simplifies reasoning about overflow and underflow.
func deltaForGaussian(sigma, l2Sensitivity, epsilon float64) float64 {
	a := l2Sensitivity / (2 * sigma)
	b := epsilon * sigma / l2Sensitivity
	c := math.Exp(epsilon)

	if math.IsInf(c, +1) {
		// δ(σ,s,ε) –> 0 as ε –> ∞, so return 0.
		return 0
	}
	if math.IsInf(b, +1) {
		// δ(σ,s,ε) –> 0 as the L2 sensitivity –> 0, so return 0.
		return 0
	}

	return distuv.UnitNormal.CDF(a-b) - c*distuv.UnitNormal.CDF(-a-b)
}

// sigmaForGaussian calculates the standard deviation σ of Gaussian noise
// needed to achieve (ε,δ)-approximate differential privacy for the given L2
// sensitivity.
//
// sigmaForGaussian uses binary search. The result will deviate from the
// exact value σ_tight by at most sigmaAccuracy*σ_tight.
func sigmaForGaussian(l2Sensitivity, epsilon, delta float64) float64 {
	if delta >= 1 {
		return 0
	}

	// We use l2Sensitivity as a starting guess for the upper bound since the
	// required noise grows linearly with sensitivity.
	upperBound := l2Sensitivity
	var lowerBound float64

	// Increase upperBound until it is actually an upper bound of σ_tight.
	// deltaForGaussian is decreasing in sigma, so this loop terminates in
	// O(log(σ_tight/l2Sensitivity)) iterations when σ_tight > l2Sensitivity
	// and O(1) otherwise.
	for deltaForGaussian(upperBound, l2Sensitivity, epsilon) > delta {
		lowerBound = upperBound
		upperBound = upperBound * 2
	}

	for upperBound-lowerBound > sigmaAccuracy*lowerBound {
		middle := lowerBound*0.5 + upperBound*0.5
		if deltaForGaussian(middle, l2Sensitivity, epsilon) > delta {
			lowerBound = middle
		} else {
			upperBound = middle
		}
	}

	return upperBound
}
