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
	"encoding/json"
	"fmt"

	"github.com/dplib/accounting/dperr"
)

type snapshot struct {
	Mechanism  string       `json:"mechanism"`
	Epsilon    float64      `json:"epsilon"`
	Delta      float64      `json:"delta,omitempty"`
	Calibrated bool         `json:"calibrated"`
	Meta       snapshotMeta `json:"meta,omitempty"`
}

type snapshotMeta struct {
	Sensitivity float64 `json:"sensitivity,omitempty"`
	Scale       float64 `json:"scale,omitempty"`
}

// MarshalJSON serializes the mechanism's declared guarantee and calibration
// state as a flat tagged record. The wired accountant and perturber are
// runtime dependencies and are not serialized.
func (m *Mechanism) MarshalJSON() ([]byte, error) {
	snap := snapshot{
		Mechanism:  m.kind.String(),
		Epsilon:    m.epsilon,
		Delta:      m.delta,
		Calibrated: m.state == calibrated,
	}
	if m.state == calibrated {
		snap.Meta = snapshotMeta{Sensitivity: m.sensitivity, Scale: m.scale}
	}
	return json.Marshal(snap)
}

// UnmarshalJSON reconstructs a mechanism from a snapshot, revalidating the
// declared guarantee and, for a calibrated snapshot, re-deriving the noise
// scale from the recorded sensitivity rather than trusting the stored
// scale. The loaded mechanism has no accountant or perturber wired.
func (m *Mechanism) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("mechanism.UnmarshalJSON: %w: %v", dperr.ErrValidation, err)
	}
	loaded, err := NewFromName(snap.Mechanism, Options{Epsilon: snap.Epsilon, Delta: snap.Delta})
	if err != nil {
		return err
	}
	if snap.Calibrated {
		if err := loaded.Calibrate(snap.Meta.Sensitivity); err != nil {
			return err
		}
	}
	*m = *loaded
	return nil
}
