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

// Package dperr defines the error kinds surfaced by the privacy accounting
// engine. Callers discriminate between kinds with errors.Is; none of these
// errors are transient, so none should be retried.
package dperr

import "errors"

var (
	// ErrValidation indicates a malformed parameter (ε, δ, sensitivity,
	// sampling rate, weights, ...).
	ErrValidation = errors.New("validation failed")
	// ErrCalibration indicates that calibration computed an invalid scale.
	ErrCalibration = errors.New("calibration failed")
	// ErrNotCalibrated indicates that randomization was attempted before
	// calibration.
	ErrNotCalibrated = errors.New("mechanism not calibrated")
	// ErrConversion indicates that no valid mapping exists between the
	// requested guarantee models.
	ErrConversion = errors.New("no valid conversion")
	// ErrComposition indicates that incompatible guarantee models were
	// composed without a safe common representation.
	ErrComposition = errors.New("incompatible composition")
	// ErrBudgetExceeded indicates that admitting an event would exceed the
	// declared maximum guarantee. The rejected event is never recorded.
	ErrBudgetExceeded = errors.New("privacy budget exceeded")
)
