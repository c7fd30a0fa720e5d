// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import "math"

const (
	DefaultYawRelaxFactor         = 1.41
	DefaultSideReductionThreshold = 0.125
)

// Player space fades to local yaw while |up·forward| moves through this band,
// i.e. as the controller points straight up or down.
const (
	playerSpaceFadeStart = 0.9
	playerSpaceFadeEnd   = 0.99
)

// Aim is a 2D angular velocity for camera or cursor control, deg/s.
// X is horizontal (positive turns right), Y is vertical (positive tilts up).
type Aim struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func upFromGravity(gravity Vec3) Vec3 {
	if up, ok := gravity.Normalized(); ok && up.IsFinite() {
		return up
	}
	return defaultGravity
}

// PlayerSpaceGyro maps a calibrated gyro reading to aim deltas that stay
// yaw-stable while the controller tilts.
//
// The world yaw is taken from the yaw and roll axes only (the pitch axis is
// left out so pitching never bleeds into yaw), scaled by yawRelaxFactor and
// capped at the magnitude of those two axes. yawRelaxFactor blends between
// pure local yaw (0) and that world yaw (1 and above). When the forward axis
// lines up with gravity the world yaw collapses onto roll, so the blend
// fades back to local yaw there.
func PlayerSpaceGyro(gyro, gravity Vec3, yawRelaxFactor float64) Aim {
	if !gyro.IsFinite() {
		return Aim{}
	}
	if !isFinite(yawRelaxFactor) {
		yawRelaxFactor = DefaultYawRelaxFactor
	}
	yawRelaxFactor = math.Max(yawRelaxFactor, 0)
	up := upFromGravity(gravity)

	worldYaw := up.Y*gyro.Y + up.Z*gyro.Z
	limit := math.Hypot(gyro.Y, gyro.Z)
	playerYaw := math.Copysign(math.Min(math.Abs(worldYaw)*yawRelaxFactor, limit), worldYaw)

	w := math.Min(yawRelaxFactor, 1) * (1 - smoothstep(playerSpaceFadeStart, playerSpaceFadeEnd, math.Abs(up.Y)))
	yaw := lerp(gyro.Z, playerYaw, w)

	return Aim{X: -yaw, Y: gyro.X}
}

// WorldSpaceGyro maps a calibrated gyro reading to aim deltas locked to the
// gravity-defined vertical. Yaw is the rotation about world up; pitch is the
// rotation about the horizontal axis perpendicular to where the controller
// points. That pitch axis is undefined when the forward axis is vertical, so
// once the horizontal part of the forward axis drops below
// 2·sideReductionThreshold the output is scaled down, reaching zero at
// sideReductionThreshold. A threshold <= 0 disables the reduction.
func WorldSpaceGyro(gyro, gravity Vec3, sideReductionThreshold float64) Aim {
	if !gyro.IsFinite() {
		return Aim{}
	}
	if !isFinite(sideReductionThreshold) {
		sideReductionThreshold = DefaultSideReductionThreshold
	}
	up := upFromGravity(gravity)

	yaw := up.Dot(gyro)

	forwardFlat := Vec3{Y: 1}.Sub(up.Scale(up.Y))
	reduction := 1.0
	if sideReductionThreshold > 0 {
		reduction = clamp((forwardFlat.Length()-sideReductionThreshold)/sideReductionThreshold, 0, 1)
	}

	var pitch float64
	if axis, ok := forwardFlat.Cross(up).Normalized(); ok {
		pitch = axis.Dot(gyro)
	}

	return Aim{X: -yaw * reduction, Y: pitch * reduction}
}
