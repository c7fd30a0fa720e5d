// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

// Command types accepted on the control topic and the motion websocket.
const (
	CmdStartCalibration = "start_calibration"
	CmdPauseCalibration = "pause_calibration"
	CmdResetCalibration = "reset_calibration"
	CmdSetMode          = "set_mode"
	CmdSetOffset        = "set_offset"
	CmdSetConfidence    = "set_confidence"
	CmdReset            = "reset"
	CmdResetMotion      = "reset_motion"
	CmdSaveCalibration  = "save_calibration"
)

var errMissingField = errors.New("missing field")

// Command is a control message for the motion producer.
type Command struct {
	Type       string       `json:"type"`
	Mode       string       `json:"mode,omitempty"`
	Bias       *motion.Vec3 `json:"bias,omitempty"`
	Weight     int          `json:"weight,omitempty"`
	Confidence *float64     `json:"confidence,omitempty"`
}

// ParseCommand decodes and validates a JSON command.
func ParseCommand(b []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// Validate checks that the command carries what its type needs.
func (c Command) Validate() error {
	switch c.Type {
	case CmdStartCalibration, CmdPauseCalibration, CmdResetCalibration,
		CmdReset, CmdResetMotion, CmdSaveCalibration:
		return nil
	case CmdSetMode:
		if _, err := motion.ParseCalibrationMode(c.Mode); err != nil {
			return fmt.Errorf("command %s: %w", c.Type, err)
		}
		return nil
	case CmdSetOffset:
		if c.Bias == nil {
			return fmt.Errorf("command %s: bias: %w", c.Type, errMissingField)
		}
		if !c.Bias.IsFinite() {
			return fmt.Errorf("command %s: bias must be finite", c.Type)
		}
		return nil
	case CmdSetConfidence:
		if c.Confidence == nil {
			return fmt.Errorf("command %s: confidence: %w", c.Type, errMissingField)
		}
		return nil
	case "":
		return fmt.Errorf("command type: %w", errMissingField)
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
}

// Apply runs the command against g. It reports whether the caller should
// persist the calibration afterwards.
func (c Command) Apply(g *motion.GamepadMotion) (save bool, err error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	switch c.Type {
	case CmdStartCalibration:
		g.StartContinuousCalibration()
	case CmdPauseCalibration:
		g.PauseContinuousCalibration()
	case CmdResetCalibration:
		g.ResetContinuousCalibration()
	case CmdSetMode:
		m, _ := motion.ParseCalibrationMode(c.Mode)
		g.SetCalibrationMode(m)
	case CmdSetOffset:
		g.SetCalibrationOffset(*c.Bias, c.Weight)
	case CmdSetConfidence:
		g.SetAutoCalibrationConfidence(*c.Confidence)
	case CmdReset:
		g.Reset()
	case CmdResetMotion:
		g.ResetMotion()
	case CmdSaveCalibration:
		return true, nil
	}
	return false, nil
}
