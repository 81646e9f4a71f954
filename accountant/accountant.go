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

// Package accountant tracks cumulative privacy loss against a declared
// budget.
//
// An Accountant exclusively owns an append-only ledger of privacy-consuming
// events. Admission is all-or-nothing: Request first computes the aggregated
// guarantee the ledger would have if the event were admitted, compares it
// against the declared maximum, and only then appends — a rejected event
// leaves the ledger unchanged. All admissions on one Accountant are
// serialized by a mutex so that two concurrent requests can never both pass
// the budget check against a stale aggregate.
package accountant

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dplib/accounting/composition"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

// budgetSlack is the numerical tolerance applied when comparing the
// aggregated guarantee against the declared maximum, so that floating-point
// error in exact-sum compositions cannot reject a legitimate event.
const budgetSlack = 1e-12

// Event records a single privacy-consuming mechanism application. Events are
// immutable once appended and exclusively owned by the ledger that appended
// them.
type Event struct {
	// Mechanism identifies the mechanism that consumed the budget.
	Mechanism string `json:"mechanism"`
	// Guarantee is the privacy claim the event consumes.
	Guarantee guarantee.Guarantee `json:"guarantee"`
	// SampleRate is the subsampling rate the mechanism was applied with, or
	// 0 when the mechanism saw the full input.
	SampleRate float64 `json:"sample_rate,omitempty"`
	// SampledWithoutReplacement asserts that the subsample was drawn
	// uniformly without replacement. Amplification is applied only when the
	// caller asserts this; it is never inferred.
	SampledWithoutReplacement bool `json:"sampled_without_replacement,omitempty"`
	// Seq is the monotonically increasing sequence index assigned by the
	// ledger at admission time.
	Seq int64 `json:"seq"`
	// Tag is an opaque correlation tag, e.g. a query id. When left empty the
	// ledger assigns a fresh UUID at admission time.
	Tag string `json:"tag"`
}

// effective returns the guarantee the event actually consumes, with
// subsampling amplification applied when asserted.
func (e Event) effective() (guarantee.Guarantee, error) {
	if e.SampleRate == 0 || e.SampleRate == 1 {
		return e.Guarantee, nil
	}
	res, err := composition.Subsample(e.Guarantee, e.SampleRate, e.SampledWithoutReplacement)
	if err != nil {
		return guarantee.Guarantee{}, err
	}
	return res.Guarantee, nil
}

// Accountant owns one budget ledger. The zero value is not usable; use New.
type Accountant struct {
	mu        sync.Mutex
	limit     guarantee.Guarantee
	events    []Event
	effective []guarantee.Guarantee
	current   composition.Result
	history   []composition.Result
	alerts    []Alert
	nextSeq   int64
}

// New returns an Accountant enforcing the given declared maximum guarantee.
func New(limit guarantee.Guarantee) (*Accountant, error) {
	if limit.Model() == guarantee.Unknown {
		return nil, fmt.Errorf("accountant.New: %w: declared maximum must be a valid guarantee", dperr.ErrValidation)
	}
	return &Accountant{limit: limit}, nil
}

// Limit returns the declared maximum guarantee.
func (a *Accountant) Limit() guarantee.Guarantee { return a.limit }

// Request admits the event if doing so keeps the aggregated guarantee within
// the declared maximum, returning the new aggregate. A rejection wraps
// dperr.ErrBudgetExceeded and has no side effect on the ledger.
func (a *Accountant) Request(e Event) (composition.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requestLocked(e, nil)
}

// requestLocked runs the admission protocol. When the request originates
// from a scope, the scope chain is notified, innermost first, only after the
// event is appended.
func (a *Accountant) requestLocked(e Event, scope *Scope) (composition.Result, error) {
	eff, err := e.effective()
	if err != nil {
		return composition.Result{}, err
	}
	candidate, err := composition.Sequential(append(append([]guarantee.Guarantee{}, a.effective...), eff))
	if err != nil {
		return composition.Result{}, err
	}
	over, err := exceeds(candidate.Guarantee, a.limit)
	if err != nil {
		return composition.Result{}, err
	}
	if over {
		return composition.Result{}, fmt.Errorf("accountant.Request: %w: admitting %v would exceed the declared maximum %v (current %v)",
			dperr.ErrBudgetExceeded, eff, a.limit, a.current.Guarantee)
	}

	e.Seq = a.nextSeq
	a.nextSeq++
	if e.Tag == "" {
		e.Tag = uuid.NewString()
	}
	a.events = append(a.events, e)
	a.effective = append(a.effective, eff)
	a.current = candidate
	a.history = append(a.history, candidate)

	for s := scope; s != nil; s = s.parent {
		s.record(e, eff)
	}
	return candidate, nil
}

// CanAllocate reports whether the event would be admitted, without mutating
// the ledger.
func (a *Accountant) CanAllocate(e Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	eff, err := e.effective()
	if err != nil {
		return false
	}
	candidate, err := composition.Sequential(append(append([]guarantee.Guarantee{}, a.effective...), eff))
	if err != nil {
		return false
	}
	over, err := exceeds(candidate.Guarantee, a.limit)
	return err == nil && !over
}

// Current returns the aggregated guarantee of the ledger. For an empty
// ledger the Result's Events count is 0 and its Guarantee is the zero value.
func (a *Accountant) Current() composition.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Events returns a copy of the ledger's event history in admission order.
func (a *Accountant) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Event(nil), a.events...)
}

// History returns every aggregated result the ledger has gone through, in
// order. Superseded results are retained for audit.
func (a *Accountant) History() []composition.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]composition.Result(nil), a.history...)
}

// Alerts returns a copy of the scope alerts fired so far, in firing order.
func (a *Accountant) Alerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.alerts...)
}

// Reset discards the ledger and its audit history. The declared maximum is
// kept. Open scopes created before the reset must not be used afterwards.
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = nil
	a.effective = nil
	a.current = composition.Result{}
	a.history = nil
	a.alerts = nil
	a.nextSeq = 0
}

// exceeds reports whether spent is a larger privacy loss than limit. When
// the models differ, spent is first converted to the limit's model; such
// conversions never understate the spend, so the comparison stays
// conservative. A spend that cannot be expressed in the limit's model is a
// composition error: the caller must keep ledger and budget compatible.
func exceeds(spent, limit guarantee.Guarantee) (bool, error) {
	if spent.Model() != limit.Model() {
		conv, err := spent.To(limit.Model(), limit.Delta())
		if err != nil {
			return false, fmt.Errorf("accountant: %w: spend in model %v cannot be compared against a %v budget",
				dperr.ErrComposition, spent.Model(), limit.Model())
		}
		spent = conv.Guarantee
	}
	switch limit.Model() {
	case guarantee.PureDP:
		return spent.Epsilon() > limit.Epsilon()+budgetSlack, nil
	case guarantee.ApproxDP:
		return spent.Epsilon() > limit.Epsilon()+budgetSlack || spent.Delta() > limit.Delta()+budgetSlack, nil
	case guarantee.ZCDP:
		return spent.Rho() > limit.Rho()+budgetSlack, nil
	case guarantee.GDP:
		return spent.Mu() > limit.Mu()+budgetSlack, nil
	case guarantee.RDP:
		return exceedsRDP(spent, limit)
	}
	return false, fmt.Errorf("accountant: %w: unsupported budget model %v", dperr.ErrValidation, limit.Model())
}

// exceedsRDP compares RDP guarantees pointwise over their common orders. The
// spend exceeds the budget when it is larger at every common order: as long
// as one order stays within budget, the budget's claim still holds there.
func exceedsRDP(spent, limit guarantee.Guarantee) (bool, error) {
	limitByOrder := map[float64]float64{}
	for _, p := range limit.Curve() {
		limitByOrder[p.Order] = p.Epsilon
	}
	common := false
	over := true
	for _, p := range spent.Curve() {
		limitEps, ok := limitByOrder[p.Order]
		if !ok {
			continue
		}
		common = true
		if p.Epsilon <= limitEps+budgetSlack {
			over = false
		}
	}
	if !common {
		return false, fmt.Errorf("accountant: %w: RDP spend and budget share no common order", dperr.ErrComposition)
	}
	return over, nil
}
