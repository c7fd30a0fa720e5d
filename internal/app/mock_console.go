// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/gamepad_motion/internal/config"
	"github.com/relabs-tech/gamepad_motion/internal/sensors"
)

// RunMockConsole runs the engine on the mock source and prints its output
// locally, without MQTT. Useful to watch calibration converge on the mock's
// known bias.
func RunMockConsole() error {
	cfg := config.Default()
	cfg.SampleSource = "mock"
	cfg.CalibrationFile = ""

	p := newPipeline(cfg, newEngine(cfg), sensors.NewMockSource(), nil)
	ticker := time.NewTicker(time.Duration(cfg.SampleInterval) * time.Millisecond)
	defer ticker.Stop()

	fmt.Printf("mock bias: (%+.3f,%+.3f,%+.3f)\n", sensors.MockBias.X, sensors.MockBias.Y, sensors.MockBias.Z)

	var frame int
	for range ticker.C {
		snap, err := p.step()
		if err != nil {
			return err
		}
		frame++
		if frame%10 != 0 {
			continue
		}
		m := MotionMessage{Snapshot: snap}
		fmt.Println(formatPose(m))
		fmt.Println(formatAim(AimMessage{PlayerSpace: snap.PlayerSpace, WorldSpace: snap.WorldSpace}))
		fmt.Println(formatCalibration(snap.Calibration))
	}
	return nil
}
