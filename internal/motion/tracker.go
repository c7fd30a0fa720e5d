// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"math"

	"github.com/westphae/quaternion"
)

var (
	// defaultGravity is the at-rest accelerometer direction of a controller
	// lying face up, which is also world up at identity orientation.
	defaultGravity = Vec3{Z: 1}
	worldUp        = Vec3{Z: 1}
)

// tracker integrates the calibrated gyro into an orientation and keeps a
// gravity estimate with a complementary filter.
type tracker struct {
	settings *Settings

	orientation quaternion.Quaternion
	gravity     Vec3 // unit, device frame
	processed   Vec3 // accel minus gravity, device frame

	smoothAccel Vec3
	shakiness   float64
}

func newTracker(s *Settings) tracker {
	t := tracker{settings: s}
	t.reset()
	return t
}

func (t *tracker) reset() {
	t.orientation = identityQuat()
	t.gravity = defaultGravity
	t.processed = Vec3{}
	t.smoothAccel = defaultGravity
	t.shakiness = 0
}

// update advances the state by one frame. gyro is calibrated (deg/s), accel
// in g, dt in seconds; the caller has already validated all three.
func (t *tracker) update(gyro, accel Vec3, dt float64) {
	s := t.settings

	delta := rotationFromRate(gyro, dt)
	if !quatIsFinite(delta) {
		return
	}
	if q, ok := normalizeQuat(quaternion.Prod(t.orientation, delta)); ok {
		t.orientation = q
	}

	// world-fixed vectors turn the other way in the device frame
	inv := quaternion.Conj(delta)
	grav := rotate(inv, t.gravity)
	t.smoothAccel = rotate(inv, t.smoothAccel)

	if accelDir, ok := accel.Normalized(); ok {
		decay := math.Exp2(-dt / s.ShakinessHalfLife)
		t.shakiness = math.Max(t.shakiness*decay, accel.Sub(t.smoothAccel).Length())
		t.smoothAccel = accel.Lerp(t.smoothAccel, decay)
		if !t.smoothAccel.IsFinite() || !isFinite(t.shakiness) {
			t.smoothAccel = accelDir
			t.shakiness = 0
		}

		gravToAccel := accelDir.Sub(grav)
		errLen := gravToAccel.Length()
		speed := t.correctionSpeed(accel.Length(), gyro.Length()*degToRad, errLen)
		if step := speed * dt; step >= errLen {
			grav = accelDir
		} else if errLen > 0 {
			grav = grav.Add(gravToAccel.Scale(step / errLen))
		}
	}

	if g, ok := grav.Normalized(); ok {
		t.gravity = g
	}

	// Tilt-correct the orientation so that it agrees with the gravity
	// estimate. The correction axis is horizontal, so yaw is untouched.
	corr := shortestArc(rotate(t.orientation, t.gravity), worldUp)
	if q, ok := normalizeQuat(quaternion.Prod(corr, t.orientation)); ok && quatIsFinite(q) {
		t.orientation = q
	}

	t.processed = accel.Sub(t.gravity)
}

// correctionSpeed returns how fast (per second) the gravity estimate may move
// towards the measured accel direction this frame.
func (t *tracker) correctionSpeed(accelMagnitude, angleSpeed, errLen float64) float64 {
	s := t.settings

	var speed float64
	if s.GravityCorrectionShakinessMin < s.GravityCorrectionShakinessMax {
		shaky := clamp((t.shakiness-s.GravityCorrectionShakinessMin)/(s.GravityCorrectionShakinessMax-s.GravityCorrectionShakinessMin), 0, 1)
		speed = lerp(s.GravityCorrectionStillSpeed, s.GravityCorrectionShakySpeed, shaky)
	} else if t.shakiness < s.GravityCorrectionShakinessMax {
		speed = s.GravityCorrectionStillSpeed
	} else {
		speed = s.GravityCorrectionShakySpeed
	}

	// gravity is only observable when there is little linear acceleration
	trust := clamp(1-math.Abs(accelMagnitude-1)/s.GravityCorrectionAccelTolerance, 0, 1)
	speed *= trust

	// Near the right answer, don't correct faster than a fraction of the
	// rotation speed so the correction hides inside real motion.
	limit := math.Max(angleSpeed*s.GravityCorrectionGyroFactor, s.GravityCorrectionMinimumSpeed)
	if speed > limit {
		closeEnough := 1.0
		if s.GravityCorrectionGyroMaxThreshold > s.GravityCorrectionGyroMinThreshold {
			closeEnough = clamp((errLen-s.GravityCorrectionGyroMinThreshold)/(s.GravityCorrectionGyroMaxThreshold-s.GravityCorrectionGyroMinThreshold), 0, 1)
		}
		speed = limit + (speed-limit)*closeEnough
	}
	return speed
}
