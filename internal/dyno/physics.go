package dyno

import (
	"math"
	"time"
)

// Measurement is the physical state derived from one accepted sample.
type Measurement struct {
	RPM      float64   `json:"rpm"`
	SpeedKmh float64   `json:"speed_kmh"`
	TorqueNm float64   `json:"torque_nm"`
	PowerW   float64   `json:"power_w"`
	At       time.Time `json:"at"`
}

func circumference(diameterMM float64) float64 {
	return diameterMM / 1000 * math.Pi
}

// RPMFromPeriod converts a revolution period in microseconds to RPM.
// Non-positive periods mean the roller is stopped.
func RPMFromPeriod(periodMicros int64) float64 {
	if periodMicros <= 0 {
		return 0
	}
	return 60_000_000 / float64(periodMicros)
}

// SpeedKmh converts roller RPM to surface speed in km/h.
func SpeedKmh(rpm, circumferenceM float64) float64 {
	return rpm / 60 * circumferenceM * 3.6
}

// AngularVelocity converts RPM to rad/s.
func AngularVelocity(rpm float64) float64 {
	return 2 * math.Pi * rpm / 60
}

// Torque returns J·Δω/Δt clamped at zero. Deceleration is reported as 0
// since the sensor cannot tell braking from jitter.
func Torque(inertia, omega, omegaOld float64, dt time.Duration) float64 {
	secs := dt.Seconds()
	if secs <= 0 {
		return 0
	}
	return math.Max(inertia*(omega-omegaOld)/secs, 0)
}

// Power returns ω·τ clamped at zero.
func Power(omega, torque float64) float64 {
	return math.Max(omega*torque, 0)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
