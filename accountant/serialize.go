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

package accountant

import (
	"encoding/json"
	"fmt"

	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

type ledgerSnapshot struct {
	Limit  guarantee.Guarantee `json:"limit"`
	Events []Event             `json:"events"`
}

// Snapshot serializes the declared maximum and the full event ledger. The
// aggregated state is not serialized; it is recomputed on load so that a
// snapshot can never smuggle in an aggregate its events do not support.
func (a *Accountant) Snapshot() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return json.Marshal(ledgerSnapshot{Limit: a.limit, Events: a.events})
}

// FromSnapshot reconstructs an Accountant from a Snapshot payload. Every
// event is replayed through the admission protocol, so a tampered snapshot
// whose events exceed the declared maximum fails to load.
func FromSnapshot(data []byte) (*Accountant, error) {
	var snap ledgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("accountant.FromSnapshot: %w: %v", dperr.ErrValidation, err)
	}
	a, err := New(snap.Limit)
	if err != nil {
		return nil, err
	}
	for _, e := range snap.Events {
		want := e.Seq
		if _, err := a.Request(e); err != nil {
			return nil, fmt.Errorf("accountant.FromSnapshot: replaying event %d: %w", want, err)
		}
		if got := a.events[len(a.events)-1].Seq; got != want {
			return nil, fmt.Errorf("accountant.FromSnapshot: %w: event sequence %d does not match ledger position %d",
				dperr.ErrValidation, want, got)
		}
	}
	return a, nil
}

// Report returns a flat description of the accountant's state for inclusion
// in logs or audit records.
func (a *Accountant) Report() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	rep := map[string]any{
		"limit":  a.limit.Report(),
		"events": len(a.events),
	}
	if len(a.events) > 0 {
		rep["spent"] = a.current.Guarantee.Report()
		rep["method"] = a.current.Method.String()
	}
	return rep
}
