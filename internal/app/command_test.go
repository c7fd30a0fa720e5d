// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"set_offset","bias":{"x":0.5,"y":-1,"z":0},"weight":20}`))
	require.NoError(t, err)
	assert.Equal(t, CmdSetOffset, cmd.Type)
	require.NotNil(t, cmd.Bias)
	assert.Equal(t, motion.Vec3{X: 0.5, Y: -1}, *cmd.Bias)
	assert.Equal(t, 20, cmd.Weight)

	cmd, err = ParseCommand([]byte(`{"type":"set_confidence","confidence":0}`))
	require.NoError(t, err)
	require.NotNil(t, cmd.Confidence)
	assert.Zero(t, *cmd.Confidence)
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"not json", `set_mode`, "decode command"},
		{"no type", `{}`, "command type"},
		{"unknown", `{"type":"calibrate_all"}`, "unknown command type"},
		{"bad mode", `{"type":"set_mode","mode":"kalman"}`, "set_mode"},
		{"offset without bias", `{"type":"set_offset","weight":3}`, "bias"},
		{"confidence missing", `{"type":"set_confidence"}`, "confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCommandApply(t *testing.T) {
	g := motion.New()

	save, err := Command{Type: CmdSetMode, Mode: "automatic"}.Apply(g)
	require.NoError(t, err)
	assert.False(t, save)
	assert.Equal(t, motion.Automatic, g.CalibrationMode())

	bias := motion.Vec3{X: 1, Y: 2, Z: 3}
	_, err = Command{Type: CmdSetOffset, Bias: &bias, Weight: 10}.Apply(g)
	require.NoError(t, err)
	assert.Equal(t, motion.CalibrationOffset{Bias: bias, Weight: 10}, g.CalibrationOffset())

	conf := 0.4
	_, err = Command{Type: CmdSetConfidence, Confidence: &conf}.Apply(g)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, g.AutoCalibrationConfidence(), 1e-12)

	_, err = Command{Type: CmdStartCalibration}.Apply(g)
	require.NoError(t, err)
	assert.True(t, g.IsCalibrating())

	_, err = Command{Type: CmdPauseCalibration}.Apply(g)
	require.NoError(t, err)
	assert.False(t, g.IsCalibrating())

	_, err = Command{Type: CmdResetCalibration}.Apply(g)
	require.NoError(t, err)
	assert.Zero(t, g.CalibrationOffset().Weight)

	save, err = Command{Type: CmdSaveCalibration}.Apply(g)
	require.NoError(t, err)
	assert.True(t, save)

	_, err = Command{Type: "nope"}.Apply(g)
	assert.Error(t, err)
}

func TestCommandResetKeepsOrResetsCalibration(t *testing.T) {
	g := motion.New()
	bias := motion.Vec3{X: 1}
	_, err := Command{Type: CmdSetOffset, Bias: &bias, Weight: 5}.Apply(g)
	require.NoError(t, err)

	g.ProcessMotion(motion.Vec3{Z: 90}, motion.Vec3{Z: 1}, 0.5)
	_, err = Command{Type: CmdResetMotion}.Apply(g)
	require.NoError(t, err)
	assert.Equal(t, 5, g.CalibrationOffset().Weight)
	assert.Equal(t, motion.Pose{}, g.Pose())

	_, err = Command{Type: CmdReset}.Apply(g)
	require.NoError(t, err)
	assert.Zero(t, g.CalibrationOffset().Weight)
}
