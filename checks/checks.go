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

// Package checks contains parameter checks for privacy accounting functions.
//
// All checks wrap dperr.ErrValidation so that callers can discriminate
// validation failures with errors.Is. The label identifies the calling
// operation in the error message.
package checks

import (
	"fmt"
	"math"

	"github.com/dplib/accounting/dperr"
)

// CheckEpsilon returns an error if ε is strictly negative, NaN or ±∞.
func CheckEpsilon(label string, epsilon float64) error {
	if epsilon < 0 || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("%s: %w: Epsilon is %f, must be nonnegative and finite", label, dperr.ErrValidation, epsilon)
	}
	return nil
}

// CheckEpsilonStrict returns an error if ε is nonpositive, NaN or ±∞.
func CheckEpsilonStrict(label string, epsilon float64) error {
	if epsilon <= 0 || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("%s: %w: Epsilon is %f, must be strictly positive and finite", label, dperr.ErrValidation, epsilon)
	}
	return nil
}

// CheckDelta returns an error if δ is NaN, negative, or greater than or equal to 1.
func CheckDelta(label string, delta float64) error {
	if math.IsNaN(delta) {
		return fmt.Errorf("%s: %w: Delta is %e, cannot be NaN", label, dperr.ErrValidation, delta)
	}
	if delta < 0 {
		return fmt.Errorf("%s: %w: Delta is %e, cannot be negative", label, dperr.ErrValidation, delta)
	}
	if delta >= 1 {
		return fmt.Errorf("%s: %w: Delta is %e, must be strictly less than 1", label, dperr.ErrValidation, delta)
	}
	return nil
}

// CheckDeltaStrict returns an error if δ is NaN, nonpositive, or greater than
// or equal to 1.
func CheckDeltaStrict(label string, delta float64) error {
	if math.IsNaN(delta) {
		return fmt.Errorf("%s: %w: Delta is %e, cannot be NaN", label, dperr.ErrValidation, delta)
	}
	if delta <= 0 {
		return fmt.Errorf("%s: %w: Delta is %e, must be strictly positive", label, dperr.ErrValidation, delta)
	}
	if delta >= 1 {
		return fmt.Errorf("%s: %w: Delta is %e, must be strictly less than 1", label, dperr.ErrValidation, delta)
	}
	return nil
}

// CheckNoDelta returns an error if δ is non-zero.
func CheckNoDelta(label string, delta float64) error {
	if delta != 0 {
		return fmt.Errorf("%s: %w: Delta is %e, must be 0", label, dperr.ErrValidation, delta)
	}
	return nil
}

// CheckRho returns an error if the zCDP parameter ρ is negative, NaN or ±∞.
func CheckRho(label string, rho float64) error {
	if rho < 0 || math.IsInf(rho, 0) || math.IsNaN(rho) {
		return fmt.Errorf("%s: %w: Rho is %f, must be nonnegative and finite", label, dperr.ErrValidation, rho)
	}
	return nil
}

// CheckMu returns an error if the GDP parameter μ is nonpositive, NaN or ±∞.
func CheckMu(label string, mu float64) error {
	if mu <= 0 || math.IsInf(mu, 0) || math.IsNaN(mu) {
		return fmt.Errorf("%s: %w: Mu is %f, must be strictly positive and finite", label, dperr.ErrValidation, mu)
	}
	return nil
}

// CheckOrder returns an error if the Rényi divergence order α is not strictly
// greater than 1 and finite.
func CheckOrder(label string, order float64) error {
	if order <= 1 || math.IsInf(order, 0) || math.IsNaN(order) {
		return fmt.Errorf("%s: %w: Order is %f, must be strictly greater than 1 and finite", label, dperr.ErrValidation, order)
	}
	return nil
}

// CheckSensitivity returns an error if the sensitivity is nonpositive, NaN or ±∞.
func CheckSensitivity(label string, sensitivity float64) error {
	if sensitivity <= 0 || math.IsInf(sensitivity, 0) || math.IsNaN(sensitivity) {
		return fmt.Errorf("%s: %w: Sensitivity is %f, must be strictly positive and finite", label, dperr.ErrValidation, sensitivity)
	}
	return nil
}

// CheckSampleRate returns an error if the subsampling rate q is outside (0, 1].
func CheckSampleRate(label string, rate float64) error {
	if rate <= 0 || rate > 1 || math.IsNaN(rate) {
		return fmt.Errorf("%s: %w: SampleRate is %f, must be within (0, 1]", label, dperr.ErrValidation, rate)
	}
	return nil
}

// CheckGroupSize returns an error if the group size is less than 1.
func CheckGroupSize(label string, size int) error {
	if size < 1 {
		return fmt.Errorf("%s: %w: GroupSize is %d, must be at least 1", label, dperr.ErrValidation, size)
	}
	return nil
}

// weightSumTolerance bounds how far caller-supplied weights may deviate from
// summing to exactly 1.
const weightSumTolerance = 1e-9

// CheckWeights returns an error if any weight is negative, NaN or ±∞, or if
// the weights do not sum to 1 within a tolerance of 1e-9.
func CheckWeights(label string, weights []float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%s: %w: Weights must not be empty", label, dperr.ErrValidation)
	}
	sum := 0.0
	for i, w := range weights {
		if w < 0 || math.IsInf(w, 0) || math.IsNaN(w) {
			return fmt.Errorf("%s: %w: Weights[%d] is %f, must be nonnegative and finite", label, dperr.ErrValidation, i, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%s: %w: Weights sum to %f, must sum to 1", label, dperr.ErrValidation, sum)
	}
	return nil
}

// CheckThreshold returns an error if a scope alert threshold is outside (0, 1].
func CheckThreshold(label string, threshold float64) error {
	if threshold <= 0 || threshold > 1 || math.IsNaN(threshold) {
		return fmt.Errorf("%s: %w: Threshold is %f, must be within (0, 1]", label, dperr.ErrValidation, threshold)
	}
	return nil
}
