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

package moments

import (
	"math"

	"gonum.org/v1/gonum/stat/combin"
)

// GaussianRDP returns an upper bound on the Rényi divergence of order alpha
// for a single application of the Gaussian mechanism with the given noise
// multiplier σ (per unit of L2 sensitivity) on a uniform subsample of rate q
// drawn without replacement.
//
// Without subsampling (q = 1) the mechanism satisfies (α, α/(2σ²))-RDP
// exactly. With subsampling, integer orders use the binomial expansion of
// the sampled Gaussian moment (Mironov, Talwar and Zhang, "Rényi
// Differential Privacy of the Sampled Gaussian Mechanism"):
//
//	A(α) = Σ_{j=0..α} C(α,j)·(1-q)^{α-j}·q^j·e^{j(j-1)/(2σ²)}
//	ε(α) = log(A(α)) / (α-1)
//
// evaluated entirely in log space. Fractional orders fall back to the
// generic upper bound at the next integer order, valid because RDP is
// non-decreasing in α.
func GaussianRDP(sigma, q, alpha float64) float64 {
	if q == 1 {
		return alpha / (2 * sigma * sigma)
	}
	n := alpha
	if n != math.Trunc(n) {
		n = math.Ceil(n)
	}
	logA := math.Inf(-1)
	for j := 0.0; j <= n; j++ {
		term := combin.LogGeneralizedBinomial(n, j) +
			j*math.Log(q) +
			(n-j)*math.Log1p(-q) +
			j*(j-1)/(2*sigma*sigma)
		logA = logAdd(logA, term)
	}
	return logA / (alpha - 1)
}

// logAdd returns log(exp(a) + exp(b)) without leaving log space.
func logAdd(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
