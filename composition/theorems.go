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
	"math"

	"gonum.org/v1/gonum/floats"
)

// This file collects the literature formulas in raw numeric form, with no
// Guarantee wrappers. The higher-level entry points are validated against
// them in tests.

// SequentialSum is the basic sequential composition theorem on raw
// parameters: both ε and δ add.
func SequentialSum(epsilons, deltas []float64) (epsilon, delta float64) {
	return floats.Sum(epsilons), floats.Sum(deltas)
}

// ParallelMax is parallel composition over disjoint partitions on raw
// parameters: the coordinate-wise maximum.
func ParallelMax(epsilons, deltas []float64) (epsilon, delta float64) {
	for _, e := range epsilons {
		epsilon = math.Max(epsilon, e)
	}
	for _, d := range deltas {
		delta = math.Max(delta, d)
	}
	return epsilon, delta
}

// DRV10StrongBound is the Dwork-Rothblum-Vadhan strong composition theorem
// for k identical (ε,δ)-DP mechanisms with extra failure probability δ'.
func DRV10StrongBound(epsilon, delta float64, k int, deltaSlack float64) (epsilonOut, deltaOut float64) {
	kf := float64(k)
	epsilonOut = math.Sqrt(2*kf*math.Log(1/deltaSlack))*epsilon + kf*epsilon*(math.Exp(epsilon)-1)
	deltaOut = kf*delta + deltaSlack
	return epsilonOut, deltaOut
}

// ZCDPBound sums ρ-zCDP guarantees and converts the total to (ε,δ)-DP via
// the standard tail bound at the target δ.
func ZCDPBound(rhos []float64, targetDelta float64) (epsilon float64) {
	rho := floats.Sum(rhos)
	return rho + 2*math.Sqrt(rho*math.Log(1/targetDelta))
}

// RDPBound sums RDP losses at a fixed order and converts to (ε,δ)-DP.
func RDPBound(rdpEpsilons []float64, order, targetDelta float64) (epsilon float64) {
	return floats.Sum(rdpEpsilons) + math.Log(1/targetDelta)/(order-1)
}

// GDPBound composes μ-GDP guarantees in L2 and converts via the zCDP bridge.
func GDPBound(mus []float64, targetDelta float64) (epsilon float64) {
	muSq := 0.0
	for _, mu := range mus {
		muSq += mu * mu
	}
	return ZCDPBound([]float64{muSq / 2}, targetDelta)
}
