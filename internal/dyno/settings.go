// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dyno

import (
	"errors"
	"time"
)

// ErrNoSource is returned when no roller sensor port could be found.
var ErrNoSource = errors.New("roller sensor port not found")

// Settings holds the physical constants and filter thresholds shared by the
// reader and the publisher.
type Settings struct {
	RollerDiameterMM float64       // roller diameter in millimeters
	StopTimeout      time.Duration // zero all outputs when no sample arrived for this long
	RotorInertia     float64       // J in kg·m²
	TorqueWindow     time.Duration // span used for Δω/Δt
	StallDetection   bool          // force period 0 when the last revolution is too old

	ZeroSpeedThresh     float64       // km/h
	ZeroDuration        time.Duration // how long speed must stay low and flat
	ZeroVariationThresh float64       // km/h

	MaxTorque     float64 // full scale torque (N·m) for spike detection
	MaxPower      float64 // full scale power (W) for spike detection
	OutlierFactor float64 // fraction of full scale treated as an outlier
}

// DefaultSettings returns the values the dyno rig was tuned with.
func DefaultSettings() Settings {
	return Settings{
		RollerDiameterMM:    60.0,
		StopTimeout:         time.Second,
		RotorInertia:        0.002572,
		TorqueWindow:        5 * time.Second,
		StallDetection:      true,
		ZeroSpeedThresh:     5.0,
		ZeroDuration:        2 * time.Second,
		ZeroVariationThresh: 0.2,
		MaxTorque:           2.0,
		MaxPower:            50.0,
		OutlierFactor:       0.8,
	}
}

// CircumferenceM returns the roller circumference in meters.
func (s Settings) CircumferenceM() float64 {
	return circumference(s.RollerDiameterMM)
}
