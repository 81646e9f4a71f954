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
	"fmt"

	"github.com/golang/glog"

	"github.com/dplib/accounting/composition"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
	"github.com/dplib/accounting/schedule"
)

// Alert notifies that a scope's aggregated guarantee has crossed its alert
// threshold. Crossing the threshold does not reject the event; only the
// accountant's declared maximum does that.
type Alert struct {
	// Scope is the name of the scope that crossed its threshold.
	Scope string
	// Threshold is the scope's alert threshold.
	Threshold guarantee.Guarantee
	// Spent is the scope's aggregated guarantee after the crossing event.
	Spent guarantee.Guarantee
	// Seq is the sequence index of the event that caused the crossing.
	Seq int64
}

// ScopeOptions configures a scope created by Accountant.Scope or
// Scope.Scope.
type ScopeOptions struct {
	// Name identifies the scope in alerts and logs. Optional.
	Name string
	// OnAlert, when set, is invoked at most once, the first time the scope's
	// aggregated guarantee crosses the threshold. It runs while the
	// accountant's lock is held and must not call back into the accountant.
	OnAlert func(Alert)
}

// Scope is a nested view of an accountant's ledger with its own alert
// threshold. Events requested through a scope count against the accountant's
// declared maximum and additionally against the scope's threshold, and that
// of every enclosing scope. Callers must Close a scope on every exit path,
// typically via defer.
type Scope struct {
	acct      *Accountant
	parent    *Scope
	name      string
	threshold guarantee.Guarantee
	onAlert   func(Alert)

	events    []Event
	effective []guarantee.Guarantee
	current   composition.Result
	alerted   bool
	closed    bool
}

// Scope opens a top-level scope with the given alert threshold.
func (a *Accountant) Scope(threshold guarantee.Guarantee, opts ScopeOptions) (*Scope, error) {
	return newScope(a, nil, threshold, opts)
}

// ScopeFraction opens a top-level scope whose alert threshold is the given
// fraction of the declared maximum, scaled in the coordinates the budget's
// model composes in.
func (a *Accountant) ScopeFraction(fraction float64, opts ScopeOptions) (*Scope, error) {
	threshold, err := schedule.Fraction(a.limit, fraction)
	if err != nil {
		return nil, err
	}
	return newScope(a, nil, threshold, opts)
}

// Scope opens a child scope nested inside s. Events requested through the
// child contribute to s as well.
func (s *Scope) Scope(threshold guarantee.Guarantee, opts ScopeOptions) (*Scope, error) {
	s.acct.mu.Lock()
	defer s.acct.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("accountant.Scope: %w: scope %q is closed", dperr.ErrValidation, s.name)
	}
	return newScope(s.acct, s, threshold, opts)
}

func newScope(a *Accountant, parent *Scope, threshold guarantee.Guarantee, opts ScopeOptions) (*Scope, error) {
	if threshold.Model() == guarantee.Unknown {
		return nil, fmt.Errorf("accountant.Scope: %w: alert threshold must be a valid guarantee", dperr.ErrValidation)
	}
	return &Scope{
		acct:      a,
		parent:    parent,
		name:      opts.Name,
		threshold: threshold,
		onAlert:   opts.OnAlert,
	}, nil
}

// Request admits the event through the scope. Admission is decided by the
// accountant exactly as in Accountant.Request; on success the event is also
// recorded in this scope and every enclosing scope, firing threshold alerts
// where crossed.
func (s *Scope) Request(e Event) (composition.Result, error) {
	s.acct.mu.Lock()
	defer s.acct.mu.Unlock()
	if s.closed {
		return composition.Result{}, fmt.Errorf("accountant.Scope.Request: %w: scope %q is closed", dperr.ErrValidation, s.name)
	}
	return s.acct.requestLocked(e, s)
}

// record is called with the accountant's lock held, after the event has been
// admitted.
func (s *Scope) record(e Event, eff guarantee.Guarantee) {
	s.events = append(s.events, e)
	s.effective = append(s.effective, eff)
	candidate, err := composition.Sequential(s.effective)
	if err != nil {
		// The full-ledger composition already succeeded, so a scope-local
		// failure can only come from a model mix confined to this scope.
		glog.Warningf("scope %q: cannot aggregate scope spend: %v", s.name, err)
		return
	}
	s.current = candidate
	if s.alerted {
		return
	}
	over, err := exceeds(candidate.Guarantee, s.threshold)
	if err != nil {
		glog.Warningf("scope %q: cannot compare spend against alert threshold: %v", s.name, err)
		return
	}
	if !over {
		return
	}
	s.alerted = true
	alert := Alert{Scope: s.name, Threshold: s.threshold, Spent: candidate.Guarantee, Seq: e.Seq}
	s.acct.alerts = append(s.acct.alerts, alert)
	glog.Warningf("scope %q: aggregated guarantee %v crossed alert threshold %v at event %d",
		s.name, alert.Spent, alert.Threshold, alert.Seq)
	if s.onAlert != nil {
		s.onAlert(alert)
	}
}

// Current returns the scope's aggregated guarantee.
func (s *Scope) Current() composition.Result {
	s.acct.mu.Lock()
	defer s.acct.mu.Unlock()
	return s.current
}

// Events returns a copy of the events admitted through this scope and its
// children, in admission order.
func (s *Scope) Events() []Event {
	s.acct.mu.Lock()
	defer s.acct.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Alerted reports whether the scope has crossed its alert threshold.
func (s *Scope) Alerted() bool {
	s.acct.mu.Lock()
	defer s.acct.mu.Unlock()
	return s.alerted
}

// Close marks the scope closed. Further requests through it fail with a
// validation error. Close is idempotent; events already admitted stay in the
// accountant's ledger.
func (s *Scope) Close() {
	s.acct.mu.Lock()
	defer s.acct.mu.Unlock()
	s.closed = true
}
