// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

func TestConsoleFormats(t *testing.T) {
	m := MotionMessage{Snapshot: motion.Snapshot{
		Pose:    motion.Pose{Roll: 1.5, Pitch: -2, Yaw: 90},
		Gravity: motion.Vec3{Z: 1},
	}}
	assert.Equal(t, "[POSE] ROLL=   1.50  PITCH=  -2.00  YAW=  90.00  GRAV=(+0.00,+0.00,+1.00)", formatPose(m))

	a := AimMessage{PlayerSpace: motion.Aim{X: -30, Y: 2.5}, WorldSpace: motion.Aim{X: 10}}
	assert.Equal(t, "[AIM ] PLAYER=(  -30.00,   +2.50)  WORLD=(  +10.00,   +0.00)", formatAim(a))

	c := motion.CalibrationStatus{
		Mode:        motion.Continuous,
		Offset:      motion.CalibrationOffset{Bias: motion.Vec3{X: 0.4}, Weight: 12},
		Calibrating: true,
		Confidence:  0.25,
	}
	assert.Equal(t, "[CAL ] mode=continuous moving,calibrating conf=0.25 bias=(+0.400,+0.000,+0.000) w=12", formatCalibration(c))

	c.Steady = true
	c.Calibrating = false
	assert.Contains(t, formatCalibration(c), " steady conf=")
}
