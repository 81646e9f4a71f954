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
	"encoding/json"
	"fmt"

	"github.com/dplib/accounting/dperr"
)

// snapshotParams holds the model-specific fields of a guarantee snapshot.
type snapshotParams struct {
	Epsilon *float64   `json:"epsilon,omitempty"`
	Delta   *float64   `json:"delta,omitempty"`
	Rho     *float64   `json:"rho,omitempty"`
	Mu      *float64   `json:"mu,omitempty"`
	Curve   []RDPPoint `json:"curve,omitempty"`
}

// snapshot is the tagged wire record of a Guarantee.
type snapshot struct {
	Model      string         `json:"model"`
	Parameters snapshotParams `json:"parameters"`
}

// MarshalJSON encodes the guarantee as a tagged record
// {"model": ..., "parameters": {...}}.
func (g Guarantee) MarshalJSON() ([]byte, error) {
	s := snapshot{Model: g.model.String()}
	switch g.model {
	case PureDP:
		e := g.epsilon
		s.Parameters.Epsilon = &e
	case ApproxDP:
		e, d := g.epsilon, g.delta
		s.Parameters.Epsilon = &e
		s.Parameters.Delta = &d
	case ZCDP:
		r := g.rho
		s.Parameters.Rho = &r
	case GDP:
		m := g.mu
		s.Parameters.Mu = &m
	case RDP:
		s.Parameters.Curve = g.Curve()
	default:
		return nil, fmt.Errorf("Guarantee.MarshalJSON: %w: zero-value guarantee", dperr.ErrValidation)
	}
	return json.Marshal(s)
}

// UnmarshalJSON decodes a tagged record, revalidating all parameters through
// the factory functions.
func (g *Guarantee) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Guarantee.UnmarshalJSON: %w: %v", dperr.ErrValidation, err)
	}
	model, err := ModelFromString(s.Model)
	if err != nil {
		return err
	}
	var decoded Guarantee
	switch model {
	case PureDP:
		if s.Parameters.Epsilon == nil {
			return fmt.Errorf("Guarantee.UnmarshalJSON: %w: pure_dp snapshot missing epsilon", dperr.ErrValidation)
		}
		decoded, err = NewPureDP(*s.Parameters.Epsilon)
	case ApproxDP:
		if s.Parameters.Epsilon == nil {
			return fmt.Errorf("Guarantee.UnmarshalJSON: %w: approx_dp snapshot missing epsilon", dperr.ErrValidation)
		}
		delta := 0.0
		if s.Parameters.Delta != nil {
			delta = *s.Parameters.Delta
		}
		decoded, err = NewApproxDP(*s.Parameters.Epsilon, delta)
	case ZCDP:
		if s.Parameters.Rho == nil {
			return fmt.Errorf("Guarantee.UnmarshalJSON: %w: zcdp snapshot missing rho", dperr.ErrValidation)
		}
		decoded, err = NewZCDP(*s.Parameters.Rho)
	case GDP:
		if s.Parameters.Mu == nil {
			return fmt.Errorf("Guarantee.UnmarshalJSON: %w: gdp snapshot missing mu", dperr.ErrValidation)
		}
		decoded, err = NewGDP(*s.Parameters.Mu)
	case RDP:
		decoded, err = NewRDP(s.Parameters.Curve)
	}
	if err != nil {
		return err
	}
	*g = decoded
	return nil
}

// Report returns a structured payload for audit or logging sinks: the model
// tag plus the numeric parameters attached to this guarantee.
func (g Guarantee) Report() map[string]any {
	payload := map[string]any{"model": g.model.String()}
	switch g.model {
	case PureDP:
		payload["epsilon"] = g.epsilon
	case ApproxDP:
		payload["epsilon"] = g.epsilon
		payload["delta"] = g.delta
	case ZCDP:
		payload["rho"] = g.rho
	case GDP:
		payload["mu"] = g.mu
	case RDP:
		payload["orders"] = len(g.curve)
	}
	payload["summary"] = g.String()
	return payload
}
