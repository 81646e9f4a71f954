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

// Package ldp accounts for local differential privacy protocols, where each
// user randomizes their own contribution. Each user gets an independent
// ledger under a shared per-user cap, and the protocol-wide loss is the
// worst per-user loss: a local randomizer only ever touches its own user's
// data, so users compose in parallel.
package ldp

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dplib/accounting/accountant"
	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/composition"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

// PerUserAccountant tracks local privacy loss per user. The internal mutex
// guards the user index; admission within one user's ledger is serialized by
// that ledger's own lock.
type PerUserAccountant struct {
	mu      sync.Mutex
	perUser guarantee.Guarantee
	users   map[string]*accountant.Accountant
}

// New returns a PerUserAccountant enforcing the given per-user cap on every
// user's ledger.
func New(perUserCap guarantee.Guarantee) (*PerUserAccountant, error) {
	if perUserCap.Model() == guarantee.Unknown {
		return nil, fmt.Errorf("ldp.New: %w: per-user cap must be a valid guarantee", dperr.ErrValidation)
	}
	return &PerUserAccountant{
		perUser: perUserCap,
		users:   map[string]*accountant.Accountant{},
	}, nil
}

// NewWithGlobalCap additionally bounds the protocol-wide loss. Since the
// global loss is the worst per-user loss, the cap is enforced by tightening
// every user's ledger to the smaller of the two caps. Both caps must be
// stated in the same model.
func NewWithGlobalCap(perUserCap, globalCap guarantee.Guarantee) (*PerUserAccountant, error) {
	effective, err := minGuarantee(perUserCap, globalCap)
	if err != nil {
		return nil, err
	}
	return New(effective)
}

// minGuarantee returns the coordinate-wise smaller of two guarantees of the
// same model.
func minGuarantee(a, b guarantee.Guarantee) (guarantee.Guarantee, error) {
	if a.Model() != b.Model() {
		return guarantee.Guarantee{}, fmt.Errorf("ldp: %w: per-user cap %v and global cap %v must share a model",
			dperr.ErrComposition, a.Model(), b.Model())
	}
	switch a.Model() {
	case guarantee.PureDP:
		return guarantee.NewPureDP(math.Min(a.Epsilon(), b.Epsilon()))
	case guarantee.ApproxDP:
		return guarantee.NewApproxDP(math.Min(a.Epsilon(), b.Epsilon()), math.Min(a.Delta(), b.Delta()))
	case guarantee.ZCDP:
		return guarantee.NewZCDP(math.Min(a.Rho(), b.Rho()))
	case guarantee.GDP:
		return guarantee.NewGDP(math.Min(a.Mu(), b.Mu()))
	}
	return guarantee.Guarantee{}, fmt.Errorf("ldp: %w: caps in model %v are not supported", dperr.ErrValidation, a.Model())
}

// PerUserCap returns the cap applied to each user's ledger.
func (a *PerUserAccountant) PerUserCap() guarantee.Guarantee { return a.perUser }

// user returns the ledger for userID, creating it on first use.
func (a *PerUserAccountant) user(userID string) (*accountant.Accountant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if acct, ok := a.users[userID]; ok {
		return acct, nil
	}
	acct, err := accountant.New(a.perUser)
	if err != nil {
		return nil, err
	}
	a.users[userID] = acct
	return acct, nil
}

// Request admits the event against userID's ledger. Rejections wrap
// dperr.ErrBudgetExceeded and leave that user's ledger unchanged; other
// users' ledgers are never involved.
func (a *PerUserAccountant) Request(userID string, e accountant.Event) (composition.Result, error) {
	if userID == "" {
		return composition.Result{}, fmt.Errorf("ldp.Request: %w: user id must not be empty", dperr.ErrValidation)
	}
	acct, err := a.user(userID)
	if err != nil {
		return composition.Result{}, err
	}
	return acct.Request(e)
}

// UserLoss returns the aggregated loss of userID's ledger. The second
// result is false when the user has no ledger yet.
func (a *PerUserAccountant) UserLoss(userID string) (composition.Result, bool) {
	a.mu.Lock()
	acct, ok := a.users[userID]
	a.mu.Unlock()
	if !ok {
		return composition.Result{}, false
	}
	return acct.Current(), true
}

// Users returns the ids of all users with a ledger, sorted.
func (a *PerUserAccountant) Users() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.users))
	for id := range a.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GlobalLoss returns the protocol-wide privacy loss, the parallel
// composition of all per-user losses. An empty accountant yields a Result
// with zero events.
func (a *PerUserAccountant) GlobalLoss() (composition.Result, error) {
	a.mu.Lock()
	accts := make([]*accountant.Accountant, 0, len(a.users))
	for _, acct := range a.users {
		accts = append(accts, acct)
	}
	a.mu.Unlock()

	var gs []guarantee.Guarantee
	for _, acct := range accts {
		cur := acct.Current()
		if cur.Events == 0 {
			continue
		}
		gs = append(gs, cur.Guarantee)
	}
	if len(gs) == 0 {
		return composition.Result{Method: composition.MethodParallel}, nil
	}
	return composition.Parallel(gs)
}

// ToCentralized maps a local guarantee to the centralized claim it implies
// for a population of the given size. The mapping is the conservative
// identity bound, a local epsilon carries over as a centralized (epsilon, 0)
// claim. No shuffling or aggregation amplification is assumed; the
// assumptions the bound relies on are returned alongside it.
func ToCentralized(g guarantee.Guarantee, populationSize int) (guarantee.Guarantee, map[string]any, error) {
	if populationSize <= 0 {
		return guarantee.Guarantee{}, nil, fmt.Errorf("ldp.ToCentralized: %w: population size must be positive, got %d",
			dperr.ErrValidation, populationSize)
	}
	if g.Model() != guarantee.PureDP {
		return guarantee.Guarantee{}, nil, fmt.Errorf("ldp.ToCentralized: %w: local randomizers are stated in PureDP, got %v",
			dperr.ErrConversion, g.Model())
	}
	if err := checks.CheckEpsilonStrict("ldp.ToCentralized", g.Epsilon()); err != nil {
		return guarantee.Guarantee{}, nil, err
	}
	central, err := guarantee.NewApproxDP(g.Epsilon(), 0)
	if err != nil {
		return guarantee.Guarantee{}, nil, err
	}
	assumptions := map[string]any{
		"population_size":         populationSize,
		"independent_randomizers": true,
		"shuffle_amplification":   false,
	}
	return central, assumptions, nil
}
