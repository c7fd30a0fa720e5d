// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"fmt"
	"strings"
)

// CalibrationMode selects which subsystems may write into the gyro
// calibration offset on each frame.
type CalibrationMode int

const (
	// Manual: the offset only changes through SetCalibrationOffset or while
	// the caller has continuous calibration running.
	Manual CalibrationMode = iota
	// Continuous: like Manual, but entering the mode starts continuous
	// calibration so every frame is treated as "at rest".
	Continuous
	// Automatic: the stillness detector feeds the offset whenever the
	// controller is steady.
	Automatic
	// SensorFusion: Automatic plus the sensor-fusion assist, which corrects
	// the bias components perpendicular to gravity while the controller moves.
	SensorFusion
)

var modeNames = [...]string{
	Manual:       "manual",
	Continuous:   "continuous",
	Automatic:    "automatic",
	SensorFusion: "sensor_fusion",
}

func (m CalibrationMode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("CalibrationMode(%d)", int(m))
	}
	return modeNames[m]
}

// Valid reports whether m is one of the defined modes.
func (m CalibrationMode) Valid() bool {
	return m >= Manual && m <= SensorFusion
}

func (m CalibrationMode) usesStillness() bool {
	return m == Automatic || m == SensorFusion
}

func (m CalibrationMode) usesSensorFusion() bool {
	return m == SensorFusion
}

// ParseCalibrationMode accepts the names produced by String, case-insensitively.
// "stillness" is accepted as an alias of automatic.
func ParseCalibrationMode(s string) (CalibrationMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "stillness" {
		return Automatic, nil
	}
	for i, n := range modeNames {
		if n == name {
			return CalibrationMode(i), nil
		}
	}
	return Manual, fmt.Errorf("unknown calibration mode %q (want manual, continuous, automatic or sensor_fusion)", s)
}

func (m CalibrationMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid calibration mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *CalibrationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseCalibrationMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
