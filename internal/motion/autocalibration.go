// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import "math"

// steadyWindowSize is the number of recent frames the stillness detector
// looks at. Fixed so that observing a frame never allocates.
const steadyWindowSize = 16

// autoCalibration classifies the controller as steady (at rest) from a
// rolling window of gyro and accelerometer readings. Steadiness is debounced:
// the enter conditions must hold for MinSteadyFrames consecutive frames with
// a full window, and only the wider exit thresholds end it.
type autoCalibration struct {
	settings *Settings

	rawGyro  [steadyWindowSize]Vec3    // uncalibrated, used for spread
	gyroMag  [steadyWindowSize]float64 // calibrated magnitude
	accelDev [steadyWindowSize]float64 // | |a| - 1 |
	head     int
	count    int

	candidateFrames int
	steady          bool
	confidence      float64
}

func newAutoCalibration(s *Settings) autoCalibration {
	return autoCalibration{settings: s}
}

func (a *autoCalibration) reset() {
	a.restartWindow()
	a.confidence = 0
}

// restartWindow forgets the window and steadiness but keeps confidence.
func (a *autoCalibration) restartWindow() {
	a.head = 0
	a.count = 0
	a.candidateFrames = 0
	a.steady = false
}

func (a *autoCalibration) isSteady() bool { return a.steady }

func (a *autoCalibration) getConfidence() float64 { return a.confidence }

func (a *autoCalibration) setConfidence(c float64) {
	if math.IsNaN(c) {
		return
	}
	a.confidence = clamp(c, 0, 1)
}

// observe pushes one frame into the window, updates steadiness and
// confidence, and reports whether the controller is steady.
func (a *autoCalibration) observe(raw, calibrated Vec3, accelMagnitude, dt float64) bool {
	s := a.settings

	a.rawGyro[a.head] = raw
	a.gyroMag[a.head] = calibrated.Length()
	a.accelDev[a.head] = math.Abs(accelMagnitude - 1)
	a.head = (a.head + 1) % steadyWindowSize
	if a.count < steadyWindowSize {
		a.count++
	}

	if a.steady {
		if !a.within(s.SteadyGyroMagnitudeExit, s.SteadyGyroSpreadExit, s.SteadyAccelToleranceExit) {
			a.steady = false
			a.candidateFrames = 0
		}
	} else if a.count == steadyWindowSize &&
		a.within(s.SteadyGyroMagnitudeEnter, s.SteadyGyroSpreadEnter, s.SteadyAccelToleranceEnter) {
		a.candidateFrames++
		if a.candidateFrames >= s.MinSteadyFrames {
			a.steady = true
		}
	} else {
		a.candidateFrames = 0
	}

	if a.steady {
		a.confidence = math.Min(1, a.confidence+s.ConfidenceRiseRate*dt)
	} else {
		a.confidence = math.Max(0, a.confidence-s.ConfidenceDecayRate*dt)
	}
	return a.steady
}

// within checks every frame currently in the window against the thresholds.
func (a *autoCalibration) within(gyroMagnitude, gyroSpread, accelTolerance float64) bool {
	if a.count == 0 {
		return false
	}
	var mean Vec3
	for i := 0; i < a.count; i++ {
		if a.gyroMag[i] > gyroMagnitude || a.accelDev[i] > accelTolerance {
			return false
		}
		mean = mean.Add(a.rawGyro[i])
	}
	mean = mean.Scale(1 / float64(a.count))
	for i := 0; i < a.count; i++ {
		if a.rawGyro[i].Sub(mean).Length() > gyroSpread {
			return false
		}
	}
	return true
}

// sensorFusionAssist estimates the gyro bias while the controller moves. The
// angular velocity perpendicular to gravity is observable from how the
// accelerometer direction turns between frames; whatever the gyro reports
// beyond that is bias. Both streams go through the same EMA so their lags
// cancel.
type sensorFusionAssist struct {
	prevAccelDir Vec3
	prevGyro     Vec3
	smoothGyro   Vec3    // raw gyro, deg/s
	smoothAccel  Vec3    // accel-derived angular velocity, deg/s
	havePrev     bool    // prevAccelDir and prevGyro are set
	primed       bool    // both averages hold a measurement
	warm         float64 // seconds since the averages were primed
}

func (f *sensorFusionAssist) reset() {
	*f = sensorFusionAssist{}
}

// update returns a full bias estimate (perpendicular components from the
// fusion, the component along gravity from the current bias) when the frame
// is usable. No estimate is returned until the averages have run for
// SensorFusionSmoothingTime.
func (f *sensorFusionAssist) update(raw, calibrated, accel, gravity, bias Vec3, dt float64, s *Settings) (Vec3, bool) {
	accelDir, ok := accel.Normalized()
	if !ok {
		f.reset()
		return Vec3{}, false
	}
	if !f.havePrev {
		f.prevAccelDir = accelDir
		f.prevGyro = calibrated
		f.havePrev = true
		return Vec3{}, false
	}

	// a world-fixed direction seen from the device turns as d/dt v = v × ω,
	// so prev × cur = -ω⊥·dt
	accelRate := f.prevAccelDir.Cross(accelDir).Scale(-radToDeg / dt)
	angularAccel := calibrated.Sub(f.prevGyro).Length() / dt
	f.prevAccelDir = accelDir
	f.prevGyro = calibrated

	if !f.primed {
		// start both averages from a measurement so they share the same lag
		f.smoothGyro = raw
		f.smoothAccel = accelRate
		f.primed = true
	} else {
		alpha := dt / (s.SensorFusionSmoothingTime + dt)
		f.smoothGyro = f.smoothGyro.Lerp(raw, alpha)
		f.smoothAccel = f.smoothAccel.Lerp(accelRate, alpha)
		f.warm += dt
	}

	if f.warm < s.SensorFusionSmoothingTime {
		return Vec3{}, false
	}
	if math.Abs(accel.Length()-1) > s.SensorFusionAccelTolerance || angularAccel > s.SensorFusionAngularAccelThreshold {
		return Vec3{}, false
	}
	up, ok := gravity.Normalized()
	if !ok {
		return Vec3{}, false
	}

	diff := f.smoothGyro.Sub(f.smoothAccel)
	perp := diff.Sub(up.Scale(diff.Dot(up)))
	parallel := up.Scale(bias.Dot(up))
	return perp.Add(parallel), true
}
