// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/relabs-tech/gamepad_motion/internal/config"
	"github.com/relabs-tech/gamepad_motion/internal/imu"
)

// Open returns the sample source selected by SAMPLE_SOURCE.
func Open(cfg *config.Config) (imu.Source, error) {
	switch cfg.SampleSource {
	case "mock":
		return NewMockSource(), nil
	case "serial":
		return NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate)
	case "mpu9250":
		return NewMPU9250Source(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	case "replay":
		return NewReplaySource(cfg.ReplayFile)
	default:
		return nil, fmt.Errorf("unknown sample source %q", cfg.SampleSource)
	}
}
