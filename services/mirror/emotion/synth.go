// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package emotion

import (
	"fmt"
	"math"
)

// Tone is the audio tone category derived from the dominant emotion.
type Tone string

const (
	ToneUplifting   Tone = "uplifting"
	TonePeaceful    Tone = "peaceful"
	ToneEnergetic   Tone = "energetic"
	ToneMelancholic Tone = "melancholic"
)

// Pattern is the visual pattern category.
type Pattern string

const (
	PatternDynamicParticles Pattern = "dynamic_particles"
	PatternFlowingWaves     Pattern = "flowing_waves"
	PatternGentleRipples    Pattern = "gentle_ripples"
	PatternSlowDrift        Pattern = "slow_drift"
	PatternAmbientFloat     Pattern = "ambient_float"
)

// AirQuality is an ordinal air-quality level.
type AirQuality string

const (
	AirExcellent        AirQuality = "excellent"
	AirGood             AirQuality = "good"
	AirModerate         AirQuality = "moderate"
	AirNeedsImprovement AirQuality = "needs_improvement"
)

// Parameters is the full derived sensory-environment record for one
// reading. It has no lifecycle of its own; it is created and stored
// alongside the reading that produced it.
type Parameters struct {
	LightingColor     string     `json:"lighting_color"`
	LightingIntensity float64    `json:"lighting_intensity"`
	BackgroundColor   string     `json:"background_color"`
	AudioTone         Tone       `json:"audio_tone"`
	AudioFrequency    float64    `json:"audio_frequency"`
	AudioVolume       float64    `json:"audio_volume"`
	VisualPattern     Pattern    `json:"visual_pattern"`
	ParticleCount     int        `json:"particle_count"`
	AnimationSpeed    float64    `json:"animation_speed"`
	Temperature       float64    `json:"temperature"`
	Humidity          float64    `json:"humidity"`
	AirQuality        AirQuality `json:"air_quality"`
}

// hsv is a hue (degrees) / saturation (percent) / value (percent) color.
type hsv struct {
	h, s, v float64
}

// baseColors is the fixed per-emotion palette.
var baseColors = map[Kind]hsv{
	Joy:        {60, 100, 100},  // bright yellow
	Calm:       {200, 70, 90},   // soft blue
	Energy:     {15, 100, 100},  // bright orange
	Melancholy: {280, 80, 70},   // purple
}

var toneMapping = map[Kind]Tone{
	Joy:        ToneUplifting,
	Calm:       TonePeaceful,
	Energy:     ToneEnergetic,
	Melancholy: ToneMelancholic,
}

// defaultLightingColor is returned when the blend has zero total
// weight. Uppercase, unlike the computed colors.
const defaultLightingColor = "#FFFFFF"

// Synthesize maps an emotion vector to its environment parameters.
//
// # Description
//
// Total, deterministic, side-effect-free. Each output channel is an
// independent function of the four components. The coefficients and
// clamp bounds are part of the client contract; changing any of them is
// a breaking wire change.
//
// Inputs are assumed pre-validated (each component in [0, 1]); only the
// derived outputs are clamped.
func Synthesize(v Vector) Parameters {
	return Parameters{
		LightingColor:     lightingColor(v),
		LightingIntensity: clamp(0.4+0.4*v.Joy+0.3*v.Energy+0.2*v.Calm-0.3*v.Melancholy, 0.1, 1.0),
		BackgroundColor:   backgroundColor(v),
		AudioTone:         toneMapping[v.Dominant()],
		AudioFrequency:    clamp(261.63*(1+1.5*v.Joy+1.2*v.Energy-0.8*v.Melancholy), 100, 1000),
		AudioVolume:       clamp(0.05+0.15*v.Energy+0.1*v.Joy, 0.01, 0.3),
		VisualPattern:     visualPattern(v),
		ParticleCount:     int(clamp(math.Round(500*(1+1.5*v.Energy+1.2*v.Joy-0.5*v.Melancholy)), 100, 2000)),
		AnimationSpeed:    clamp(1.0+2.0*v.Energy+1.5*v.Joy-0.3*v.Calm-0.7*v.Melancholy, 0.1, 3.0),
		Temperature:       clamp(22.0+3.0*v.Energy+1.5*v.Joy-1.0*v.Calm-0.5*v.Melancholy, 18, 28),
		Humidity:          clamp(45.0+15.0*v.Calm+5.0*v.Melancholy-10.0*v.Energy, 30, 70),
		AirQuality:        airQuality(v),
	}
}

// lightingColor blends the per-emotion palette by component magnitude.
// A single emotion above 0.7 uses its base color directly; otherwise
// the hue/saturation/value channels are weighted by each component and
// normalized by the total magnitude.
func lightingColor(v Vector) string {
	dominant := v.Dominant()
	if v.Component(dominant) > 0.7 {
		return hsvToHex(baseColors[dominant])
	}

	total := v.Sum()
	if total == 0 {
		return defaultLightingColor
	}

	var blended hsv
	for _, k := range Kinds {
		w := v.Component(k)
		c := baseColors[k]
		blended.h += w * c.h
		blended.s += w * c.s
		blended.v += w * c.v
	}
	blended.h /= total
	blended.s /= total
	blended.v /= total
	return hsvToHex(blended)
}

// backgroundColor is a first-match threshold rule; evaluation order is
// fixed and load-bearing.
func backgroundColor(v Vector) string {
	switch {
	case v.Joy > 0.6:
		return "#4A90E2"
	case v.Calm > 0.6:
		return "#2E8B57"
	case v.Energy > 0.6:
		return "#B22222"
	case v.Melancholy > 0.6:
		return "#483D8B"
	default:
		return "#2C3E50"
	}
}

func visualPattern(v Vector) Pattern {
	switch {
	case v.Energy > 0.6:
		return PatternDynamicParticles
	case v.Joy > 0.6:
		return PatternFlowingWaves
	case v.Calm > 0.6:
		return PatternGentleRipples
	case v.Melancholy > 0.6:
		return PatternSlowDrift
	default:
		return PatternAmbientFloat
	}
}

func airQuality(v Vector) AirQuality {
	overall := v.Joy + v.Calm + v.Energy - v.Melancholy
	switch {
	case overall > 1.5:
		return AirExcellent
	case overall > 1.0:
		return AirGood
	case overall > 0.5:
		return AirModerate
	default:
		return AirNeedsImprovement
	}
}

// hsvToHex converts an hsv color to a lowercase "#rrggbb" string.
// Channel values are truncated, not rounded, to stay byte-compatible
// with existing stored colors.
func hsvToHex(c hsv) string {
	r, g, b := hsvToRGB(c.h/360, c.s/100, c.v/100)
	return fmt.Sprintf("#%02x%02x%02x", int(r*255), int(g*255), int(b*255))
}

// hsvToRGB converts h, s, v in [0, 1] to r, g, b in [0, 1].
func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	if s == 0 {
		return v, v, v
	}
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch i % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
