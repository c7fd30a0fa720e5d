// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motion turns raw gamepad gyro and accelerometer samples into a
// drift-corrected orientation, a gravity estimate, linear acceleration and
// aim deltas, while keeping a gyro bias estimate up to date.
//
// A GamepadMotion is single-threaded: one instance per controller, driven
// from one goroutine.
package motion

import (
	"github.com/westphae/quaternion"
)

// GamepadMotion is the sensor-fusion and calibration engine for one controller.
type GamepadMotion struct {
	settings Settings

	mode    CalibrationMode
	offsets offsetStore
	auto    autoCalibration
	fusion  sensorFusionAssist
	track   tracker

	calibrated Vec3
}

// New returns an engine with DefaultSettings in Manual mode.
func New() *GamepadMotion {
	return NewWithSettings(DefaultSettings())
}

// NewWithSettings returns an engine using s. Unusable values in s fall back to
// the defaults.
func NewWithSettings(s Settings) *GamepadMotion {
	g := &GamepadMotion{settings: s.sanitized(), mode: Manual}
	g.offsets = newOffsetStore(g.settings.MaxCalibrationWeight)
	g.auto = newAutoCalibration(&g.settings)
	g.track = newTracker(&g.settings)
	return g
}

// Settings returns the tuning in use.
func (g *GamepadMotion) Settings() Settings { return g.settings }

// ProcessMotion feeds one frame: gyro in deg/s, accel in g, dt in seconds.
// Frames with dt <= 0, any non-finite value, magnitudes that overflow, or all
// six sensor values exactly zero are ignored.
func (g *GamepadMotion) ProcessMotion(gyro, accel Vec3, dt float64) {
	if !(dt > 0) || !isFinite(dt) || !gyro.IsFinite() || !accel.IsFinite() {
		return
	}
	if !isFinite(gyro.Length()*dt) || !isFinite(accel.Length()) {
		return
	}
	if gyro.IsZero() && accel.IsZero() {
		return
	}

	// the detector judges the frame against the bias from before it
	pre := gyro.Sub(g.offsets.get().Bias)

	if g.offsets.continuous {
		g.offsets.addSample(gyro)
	}
	steady := g.auto.observe(gyro, pre, accel.Length(), dt)
	// continuous calibration already took this frame at full weight
	if g.mode.usesStillness() && steady && !g.offsets.continuous {
		g.offsets.addSampleWeighted(gyro, g.auto.getConfidence())
	}

	g.calibrated = gyro.Sub(g.offsets.get().Bias)
	g.track.update(g.calibrated, accel, dt)

	if g.mode.usesSensorFusion() {
		bias := g.offsets.get().Bias
		if est, ok := g.fusion.update(gyro, g.calibrated, accel, g.track.gravity, bias, dt, &g.settings); ok {
			g.offsets.addSampleWeighted(est, g.settings.SensorFusionInfluence)
		}
	}
}

// CalibratedGyro is the last processed gyro reading minus the bias, deg/s.
func (g *GamepadMotion) CalibratedGyro() Vec3 { return g.calibrated }

// Orientation returns the current unit orientation quaternion.
func (g *GamepadMotion) Orientation() quaternion.Quaternion { return g.track.orientation }

// Gravity returns the unit gravity direction in the device frame.
func (g *GamepadMotion) Gravity() Vec3 { return g.track.gravity }

// ProcessedAcceleration is the last accelerometer reading with gravity
// removed, in g.
func (g *GamepadMotion) ProcessedAcceleration() Vec3 { return g.track.processed }

// Pose returns the orientation as roll/pitch/yaw in degrees.
func (g *GamepadMotion) Pose() Pose { return PoseFromQuaternion(g.track.orientation) }

// PlayerSpaceGyro maps the calibrated gyro with the current gravity estimate.
func (g *GamepadMotion) PlayerSpaceGyro(yawRelaxFactor float64) Aim {
	return PlayerSpaceGyro(g.calibrated, g.track.gravity, yawRelaxFactor)
}

// WorldSpaceGyro maps the calibrated gyro with the current gravity estimate.
func (g *GamepadMotion) WorldSpaceGyro(sideReductionThreshold float64) Aim {
	return WorldSpaceGyro(g.calibrated, g.track.gravity, sideReductionThreshold)
}

func (g *GamepadMotion) CalibrationOffset() CalibrationOffset { return g.offsets.get() }

// SetCalibrationOffset overwrites the bias. weight is clamped into
// [0, MaxCalibrationWeight]; a non-finite bias is ignored.
func (g *GamepadMotion) SetCalibrationOffset(bias Vec3, weight int) {
	g.offsets.set(bias, weight)
}

func (g *GamepadMotion) CalibrationMode() CalibrationMode { return g.mode }

// SetCalibrationMode switches mode. Entering Continuous starts continuous
// calibration and leaving it pauses it. Invalid modes are ignored.
func (g *GamepadMotion) SetCalibrationMode(m CalibrationMode) {
	if !m.Valid() || m == g.mode {
		return
	}
	prev := g.mode
	g.mode = m
	switch {
	case m == Continuous:
		g.StartContinuousCalibration()
	case prev == Continuous:
		g.offsets.pauseContinuous()
	}
	if !m.usesSensorFusion() {
		g.fusion.reset()
	}
}

// StartContinuousCalibration treats every following frame as at rest until
// paused.
func (g *GamepadMotion) StartContinuousCalibration() {
	g.offsets.startContinuous()
	g.auto.restartWindow()
}

func (g *GamepadMotion) PauseContinuousCalibration() {
	g.offsets.pauseContinuous()
}

// ResetContinuousCalibration discards the bias and its weight. Continuous
// calibration keeps running if it was.
func (g *GamepadMotion) ResetContinuousCalibration() {
	g.offsets.resetContinuous()
	g.auto.restartWindow()
}

// IsCalibrating reports whether continuous calibration is running.
func (g *GamepadMotion) IsCalibrating() bool { return g.offsets.continuous }

func (g *GamepadMotion) AutoCalibrationIsSteady() bool { return g.auto.isSteady() }

func (g *GamepadMotion) AutoCalibrationConfidence() float64 { return g.auto.getConfidence() }

// SetAutoCalibrationConfidence clamps c into [0,1]. NaN is ignored.
func (g *GamepadMotion) SetAutoCalibrationConfidence(c float64) {
	g.auto.setConfidence(c)
}

// Reset returns the engine to its initial state, keeping the mode and the
// settings. Continuous calibration runs again only in Continuous mode.
func (g *GamepadMotion) Reset() {
	g.offsets.resetContinuous()
	if g.mode == Continuous {
		g.offsets.startContinuous()
	} else {
		g.offsets.pauseContinuous()
	}
	g.auto.reset()
	g.fusion.reset()
	g.track.reset()
	g.calibrated = Vec3{}
}

// ResetMotion clears orientation, gravity and processed acceleration but
// keeps every piece of calibration state.
func (g *GamepadMotion) ResetMotion() {
	g.track.reset()
	g.fusion.reset()
}

// CalibrationStatus is the calibration side of the engine state.
type CalibrationStatus struct {
	Mode        CalibrationMode   `json:"mode"`
	Offset      CalibrationOffset `json:"offset"`
	Calibrating bool              `json:"calibrating"`
	Steady      bool              `json:"steady"`
	Confidence  float64           `json:"confidence"`
}

// Snapshot is a value copy of everything observable on the engine, suitable
// for publishing.
type Snapshot struct {
	Orientation           quaternion.Quaternion `json:"orientation"`
	Pose                  Pose                  `json:"pose"`
	Gravity               Vec3                  `json:"gravity"`
	ProcessedAcceleration Vec3                  `json:"processed_acceleration"`
	CalibratedGyro        Vec3                  `json:"calibrated_gyro"`
	PlayerSpace           Aim                   `json:"player_space"`
	WorldSpace            Aim                   `json:"world_space"`
	Calibration           CalibrationStatus     `json:"calibration"`
}

func (g *GamepadMotion) CalibrationStatus() CalibrationStatus {
	return CalibrationStatus{
		Mode:        g.mode,
		Offset:      g.offsets.get(),
		Calibrating: g.offsets.continuous,
		Steady:      g.auto.isSteady(),
		Confidence:  g.auto.getConfidence(),
	}
}

// Snapshot collects the current state, computing both aim outputs with the
// given parameters.
func (g *GamepadMotion) Snapshot(yawRelaxFactor, sideReductionThreshold float64) Snapshot {
	return Snapshot{
		Orientation:           g.track.orientation,
		Pose:                  g.Pose(),
		Gravity:               g.track.gravity,
		ProcessedAcceleration: g.track.processed,
		CalibratedGyro:        g.calibrated,
		PlayerSpace:           g.PlayerSpaceGyro(yawRelaxFactor),
		WorldSpace:            g.WorldSpaceGyro(sideReductionThreshold),
		Calibration:           g.CalibrationStatus(),
	}
}
