// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

// Settings holds the tuning constants of the engine. They are empirical and
// not part of the engine's contract; DefaultSettings gives values that behave
// well for gamepad IMUs sampled at 100–1000 Hz.
type Settings struct {
	// Offset store
	MaxCalibrationWeight int // caps the sample weight so later samples still move the bias

	// Stillness detection. Enter thresholds must be tighter than exit thresholds.
	SteadyGyroMagnitudeEnter  float64 // deg/s, calibrated gyro magnitude
	SteadyGyroMagnitudeExit   float64
	SteadyGyroSpreadEnter     float64 // deg/s, max deviation of raw gyro from the window mean
	SteadyGyroSpreadExit      float64
	SteadyAccelToleranceEnter float64 // g, max | |a| - 1 |
	SteadyAccelToleranceExit  float64
	MinSteadyFrames           int     // consecutive candidate frames before IsSteady flips on
	ConfidenceRiseRate        float64 // per second while steady
	ConfidenceDecayRate       float64 // per second while not steady

	// Gravity complementary filter
	GravityCorrectionStillSpeed       float64 // per second
	GravityCorrectionShakySpeed       float64 // per second
	GravityCorrectionShakinessMin     float64 // g
	GravityCorrectionShakinessMax     float64 // g
	GravityCorrectionAccelTolerance   float64 // g; trust falls to zero at | |a| - 1 | = tolerance
	GravityCorrectionGyroFactor       float64 // max correction as a fraction of rotation speed (rad/s)
	GravityCorrectionGyroMinThreshold float64 // error below which the gyro limit fully applies
	GravityCorrectionGyroMaxThreshold float64 // error above which the gyro limit is ignored
	GravityCorrectionMinimumSpeed     float64 // per second
	ShakinessHalfLife                 float64 // seconds

	// Sensor-fusion assist
	SensorFusionSmoothingTime         float64 // seconds, EMA time constant for gyro and accel-derived rates
	SensorFusionAngularAccelThreshold float64 // deg/s², skip frames with faster changes
	SensorFusionAccelTolerance        float64 // g
	SensorFusionInfluence             float64 // [0,1] step scale into the offset store
}

// DefaultSettings returns the tuning used by New.
func DefaultSettings() Settings {
	return Settings{
		MaxCalibrationWeight: 500,

		SteadyGyroMagnitudeEnter:  5,
		SteadyGyroMagnitudeExit:   10,
		SteadyGyroSpreadEnter:     1,
		SteadyGyroSpreadExit:      2.5,
		SteadyAccelToleranceEnter: 0.05,
		SteadyAccelToleranceExit:  0.1,
		MinSteadyFrames:           30,
		ConfidenceRiseRate:        0.5,
		ConfidenceDecayRate:       2,

		GravityCorrectionStillSpeed:       1,
		GravityCorrectionShakySpeed:       0.1,
		GravityCorrectionShakinessMin:     0.01,
		GravityCorrectionShakinessMax:     0.4,
		GravityCorrectionAccelTolerance:   0.5,
		GravityCorrectionGyroFactor:       0.1,
		GravityCorrectionGyroMinThreshold: 0.05,
		GravityCorrectionGyroMaxThreshold: 0.25,
		GravityCorrectionMinimumSpeed:     0.01,
		ShakinessHalfLife:                 0.1,

		SensorFusionSmoothingTime:         0.25,
		SensorFusionAngularAccelThreshold: 20,
		SensorFusionAccelTolerance:        0.1,
		SensorFusionInfluence:             1,
	}
}

// sanitized fills unusable values from the defaults so a zero Settings or a
// partially filled one never produces a broken engine.
func (s Settings) sanitized() Settings {
	d := DefaultSettings()
	if s == (Settings{}) {
		return d
	}
	if s.MaxCalibrationWeight < 1 {
		s.MaxCalibrationWeight = d.MaxCalibrationWeight
	}
	if s.MinSteadyFrames < 1 {
		s.MinSteadyFrames = d.MinSteadyFrames
	}
	fix := func(v *float64, def float64) {
		if *v <= 0 || !isFinite(*v) {
			*v = def
		}
	}
	fix(&s.SteadyGyroMagnitudeEnter, d.SteadyGyroMagnitudeEnter)
	fix(&s.SteadyGyroSpreadEnter, d.SteadyGyroSpreadEnter)
	fix(&s.SteadyAccelToleranceEnter, d.SteadyAccelToleranceEnter)
	if s.SteadyGyroMagnitudeExit < s.SteadyGyroMagnitudeEnter {
		s.SteadyGyroMagnitudeExit = s.SteadyGyroMagnitudeEnter
	}
	if s.SteadyGyroSpreadExit < s.SteadyGyroSpreadEnter {
		s.SteadyGyroSpreadExit = s.SteadyGyroSpreadEnter
	}
	if s.SteadyAccelToleranceExit < s.SteadyAccelToleranceEnter {
		s.SteadyAccelToleranceExit = s.SteadyAccelToleranceEnter
	}
	fix(&s.ConfidenceRiseRate, d.ConfidenceRiseRate)
	fix(&s.ConfidenceDecayRate, d.ConfidenceDecayRate)
	fix(&s.GravityCorrectionStillSpeed, d.GravityCorrectionStillSpeed)
	fix(&s.GravityCorrectionShakySpeed, d.GravityCorrectionShakySpeed)
	fix(&s.GravityCorrectionAccelTolerance, d.GravityCorrectionAccelTolerance)
	fix(&s.GravityCorrectionMinimumSpeed, d.GravityCorrectionMinimumSpeed)
	fix(&s.ShakinessHalfLife, d.ShakinessHalfLife)
	fix(&s.SensorFusionSmoothingTime, d.SensorFusionSmoothingTime)
	fix(&s.SensorFusionAngularAccelThreshold, d.SensorFusionAngularAccelThreshold)
	fix(&s.SensorFusionAccelTolerance, d.SensorFusionAccelTolerance)
	if s.SensorFusionInfluence < 0 || s.SensorFusionInfluence > 1 || !isFinite(s.SensorFusionInfluence) {
		s.SensorFusionInfluence = d.SensorFusionInfluence
	}
	if s.GravityCorrectionGyroFactor < 0 || !isFinite(s.GravityCorrectionGyroFactor) {
		s.GravityCorrectionGyroFactor = d.GravityCorrectionGyroFactor
	}
	return s
}
