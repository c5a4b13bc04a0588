// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package emotion defines the core value types of the mood mirror:
// the four-component emotion vector, the derived dominant emotion, and
// the deterministic environment synthesizer that maps a vector to a set
// of lighting/audio/visual/ambient parameters.
//
// Everything in this package is pure: no I/O, no shared state. The
// synthesizer's coefficients and clamp bounds are contractual; clients
// render directly from its output, so identical vectors must always
// produce bit-identical parameters.
package emotion

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind identifies one of the four emotion components.
type Kind string

const (
	Joy        Kind = "joy"
	Calm       Kind = "calm"
	Energy     Kind = "energy"
	Melancholy Kind = "melancholy"
)

// Kinds is the canonical component order. It doubles as the
// dominant-emotion tie-break priority: when components are equal, the
// first maximum under this order wins. Do not reorder.
var Kinds = [4]Kind{Joy, Calm, Energy, Melancholy}

// Vector is one emotion reading's payload. Each component is bounded to
// [0, 1]; out-of-range input is a validation error, not a clamp.
//
// # Thread Safety
//
// Vector is an immutable value type; copy freely.
type Vector struct {
	Joy        float64 `json:"joy" validate:"gte=0,lte=1"`
	Calm       float64 `json:"calm" validate:"gte=0,lte=1"`
	Energy     float64 `json:"energy" validate:"gte=0,lte=1"`
	Melancholy float64 `json:"melancholy" validate:"gte=0,lte=1"`
}

var validate = validator.New()

// Validate checks that all four components are within [0, 1].
//
// # Outputs
//
//   - error: Non-nil if any component is out of range. The message names
//     the first offending component so clients can correct their input.
func (v Vector) Validate() error {
	if err := validate.Struct(v); err != nil {
		for _, k := range Kinds {
			val := v.Component(k)
			if val < 0 || val > 1 {
				return fmt.Errorf("%s must be between 0 and 1, got %g", k, val)
			}
		}
		return fmt.Errorf("invalid emotion vector: %w", err)
	}
	return nil
}

// Component returns the value of the named component.
func (v Vector) Component(k Kind) float64 {
	switch k {
	case Joy:
		return v.Joy
	case Calm:
		return v.Calm
	case Energy:
		return v.Energy
	case Melancholy:
		return v.Melancholy
	}
	return 0
}

// Dominant returns the arg-max component under the fixed tie-break
// order of Kinds. A vector of all-equal components is dominant-joy.
func (v Vector) Dominant() Kind {
	dominant := Kinds[0]
	best := v.Component(dominant)
	for _, k := range Kinds[1:] {
		if val := v.Component(k); val > best {
			dominant = k
			best = val
		}
	}
	return dominant
}

// Intensity returns the value of the dominant component.
func (v Vector) Intensity() float64 {
	return v.Component(v.Dominant())
}

// Sum returns the total magnitude across all four components.
func (v Vector) Sum() float64 {
	return v.Joy + v.Calm + v.Energy + v.Melancholy
}
