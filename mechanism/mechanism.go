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

// Package mechanism implements the lifecycle shared by budget-consuming
// mechanisms: declare a target guarantee, calibrate a noise scale to a
// sensitivity, then apply, emitting exactly one ledger event per successful
// application. Noise sampling itself is delegated to a caller-supplied
// Perturber; this package only derives the scale the perturbation must use.
package mechanism

import (
	"fmt"
	"sort"

	"github.com/dplib/accounting/accountant"
	"github.com/dplib/accounting/checks"
	"github.com/dplib/accounting/dperr"
	"github.com/dplib/accounting/guarantee"
)

// Kind identifies a supported mechanism family.
type Kind int

const (
	// Unknown is the zero Kind and never valid.
	Unknown Kind = iota
	// Laplace calibrates scale b = sensitivity / epsilon and consumes a
	// PureDP guarantee.
	Laplace
	// Gaussian calibrates the smallest sigma achieving (epsilon, delta) by
	// binary search and consumes an ApproxDP guarantee.
	Gaussian
)

// String returns a stable lower-case name for the kind.
func (k Kind) String() string {
	switch k {
	case Laplace:
		return "laplace"
	case Gaussian:
		return "gaussian"
	}
	return "unknown"
}

// KindFromString is the inverse of Kind.String.
func KindFromString(s string) (Kind, error) {
	switch s {
	case "laplace":
		return Laplace, nil
	case "gaussian":
		return Gaussian, nil
	}
	return Unknown, fmt.Errorf("mechanism.KindFromString: %w: unknown mechanism %q", dperr.ErrValidation, s)
}

// registry maps mechanism names to constructors for configuration-driven
// callers. The set of mechanisms is closed; the registry only provides
// string-keyed dispatch over it.
var registry = map[string]func(Options) (*Mechanism, error){
	"laplace":  func(opt Options) (*Mechanism, error) { return New(Laplace, opt) },
	"gaussian": func(opt Options) (*Mechanism, error) { return New(Gaussian, opt) },
}

// Kinds returns the names of all supported mechanism families, sorted.
func Kinds() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Perturber applies noise of a given scale to a value. Implementations are
// supplied by the caller; the scale is the Laplace parameter b or the
// Gaussian standard deviation sigma depending on the mechanism's kind.
type Perturber interface {
	Perturb(value, scale float64) float64
}

type state int

const (
	uninitialized state = iota
	calibrated
)

// Mechanism carries a declared privacy guarantee through calibration and
// application. It is not safe for concurrent use; ledger admission is
// serialized by the accountant it is wired to.
type Mechanism struct {
	kind    Kind
	epsilon float64
	delta   float64

	acct      *accountant.Accountant
	perturber Perturber
	tag       string

	state       state
	sensitivity float64
	scale       float64
}

// Options configures a Mechanism.
type Options struct {
	// Epsilon is the declared epsilon. Required, strictly positive.
	Epsilon float64
	// Delta is the declared delta. Must be 0 for Laplace and in (0, 1) for
	// Gaussian.
	Delta float64
	// Accountant, when set, admits one event per successful Apply. A budget
	// rejection aborts the application before any perturbation happens.
	Accountant *accountant.Accountant
	// Perturber supplies the noise. Required before Apply is called.
	Perturber Perturber
	// Tag is the correlation tag stamped on emitted events. Optional; the
	// ledger assigns a UUID when empty.
	Tag string
}

// New returns an uncalibrated mechanism of the given kind.
func New(kind Kind, opt Options) (*Mechanism, error) {
	if err := checks.CheckEpsilonStrict("mechanism.New", opt.Epsilon); err != nil {
		return nil, err
	}
	switch kind {
	case Laplace:
		if err := checks.CheckNoDelta("mechanism.New (laplace)", opt.Delta); err != nil {
			return nil, err
		}
	case Gaussian:
		if err := checks.CheckDeltaStrict("mechanism.New (gaussian)", opt.Delta); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("mechanism.New: %w: unknown mechanism kind %d", dperr.ErrValidation, kind)
	}
	return &Mechanism{
		kind:      kind,
		epsilon:   opt.Epsilon,
		delta:     opt.Delta,
		acct:      opt.Accountant,
		perturber: opt.Perturber,
		tag:       opt.Tag,
	}, nil
}

// NewFromName is New with the kind given by its string name, dispatched
// through the registry.
func NewFromName(name string, opt Options) (*Mechanism, error) {
	construct, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("mechanism.NewFromName: %w: unknown mechanism %q", dperr.ErrValidation, name)
	}
	return construct(opt)
}

// Kind returns the mechanism's kind.
func (m *Mechanism) Kind() Kind { return m.kind }

// Epsilon returns the declared epsilon.
func (m *Mechanism) Epsilon() float64 { return m.epsilon }

// Delta returns the declared delta.
func (m *Mechanism) Delta() float64 { return m.delta }

// Calibrated reports whether the mechanism has been calibrated.
func (m *Mechanism) Calibrated() bool { return m.state == calibrated }

// Sensitivity returns the sensitivity the mechanism was calibrated to, or 0
// when uncalibrated.
func (m *Mechanism) Sensitivity() float64 {
	if m.state != calibrated {
		return 0
	}
	return m.sensitivity
}

// Scale returns the calibrated noise scale, or an error wrapping
// dperr.ErrNotCalibrated when Calibrate has not succeeded yet.
func (m *Mechanism) Scale() (float64, error) {
	if m.state != calibrated {
		return 0, fmt.Errorf("mechanism.Scale: %w: %s mechanism has not been calibrated", dperr.ErrNotCalibrated, m.kind)
	}
	return m.scale, nil
}

// Calibrate derives the noise scale for the given L2 sensitivity and moves
// the mechanism to the calibrated state. Calibrating again replaces the
// derived scale and sensitivity; the declared guarantee never changes.
func (m *Mechanism) Calibrate(sensitivity float64) error {
	if err := checks.CheckSensitivity("mechanism.Calibrate", sensitivity); err != nil {
		return err
	}
	var scale float64
	switch m.kind {
	case Laplace:
		scale = sensitivity / m.epsilon
	case Gaussian:
		scale = sigmaForGaussian(sensitivity, m.epsilon, m.delta)
	}
	if !(scale > 0) {
		return fmt.Errorf("mechanism.Calibrate: %w: derived scale %v for %s with epsilon %v, delta %v, sensitivity %v is not positive",
			dperr.ErrCalibration, scale, m.kind, m.epsilon, m.delta, sensitivity)
	}
	m.sensitivity = sensitivity
	m.scale = scale
	m.state = calibrated
	return nil
}

// claim returns the privacy guarantee one application consumes.
func (m *Mechanism) claim() (guarantee.Guarantee, error) {
	if m.kind == Laplace {
		return guarantee.NewPureDP(m.epsilon)
	}
	return guarantee.NewApproxDP(m.epsilon, m.delta)
}

// Apply perturbs the value with calibrated noise. When an accountant is
// wired, exactly one event is admitted per successful application; a
// rejected budget request aborts before perturbation. Apply fails with
// dperr.ErrNotCalibrated before the first successful Calibrate.
func (m *Mechanism) Apply(value float64) (float64, error) {
	if m.state != calibrated {
		return 0, fmt.Errorf("mechanism.Apply: %w: %s mechanism has not been calibrated", dperr.ErrNotCalibrated, m.kind)
	}
	if m.perturber == nil {
		return 0, fmt.Errorf("mechanism.Apply: %w: no perturber configured", dperr.ErrValidation)
	}
	g, err := m.claim()
	if err != nil {
		return 0, err
	}
	if m.acct != nil {
		if _, err := m.acct.Request(accountant.Event{
			Mechanism: m.kind.String(),
			Guarantee: g,
			Tag:       m.tag,
		}); err != nil {
			return 0, err
		}
	}
	return m.perturber.Perturb(value, m.scale), nil
}
