// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	for _, b := range img.Pix {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func TestRenderScreen(t *testing.T) {
	m := MotionMessage{Snapshot: motion.Snapshot{
		Pose:        motion.Pose{Roll: 10, Pitch: -5, Yaw: 170},
		PlayerSpace: motion.Aim{X: -42, Y: 3},
		Calibration: motion.CalibrationStatus{Mode: motion.Automatic, Steady: true, Confidence: 0.8},
	}}

	for _, content := range []string{"aim", "orientation", "calibration"} {
		t.Run(content, func(t *testing.T) {
			waiting, err := renderScreen(content, MotionMessage{}, false)
			require.NoError(t, err)
			assert.Equal(t, displayWidth, waiting.Bounds().Dx())
			assert.Equal(t, displayHeight, waiting.Bounds().Dy())
			assert.Positive(t, litPixels(waiting))

			live, err := renderScreen(content, m, true)
			require.NoError(t, err)
			assert.Positive(t, litPixels(live))
			assert.False(t, bytes.Equal(waiting.Pix, live.Pix))
		})
	}

	_, err := renderScreen("gps", m, true)
	assert.Error(t, err)
}

func TestRenderScreenChangesWithData(t *testing.T) {
	a, err := renderScreen("orientation", MotionMessage{Snapshot: motion.Snapshot{Pose: motion.Pose{Yaw: 1}}}, true)
	require.NoError(t, err)
	b, err := renderScreen("orientation", MotionMessage{Snapshot: motion.Snapshot{Pose: motion.Pose{Yaw: 90}}}, true)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a.Pix, b.Pix))

	assert.Positive(t, litPixels(splashScreen()))
}
