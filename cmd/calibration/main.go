// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Guided gyro calibration for the configured sample source.
//
// The controller rests on a stable surface while the engine's continuous
// calibration averages the gyro. The resulting offset, with a confidence
// derived from how still the device stayed, is written to CALIBRATION_FILE
// (or -out) for the producer to restore at startup.
//
// Run:
//
//	go run ./cmd/calibration -config ./motion_config.txt -duration 10s
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/gamepad_motion/internal/app"
	"github.com/relabs-tech/gamepad_motion/internal/config"
)

func main() {
	configPath := flag.String("config", "./motion_config.txt", "Path to configuration file")
	duration := flag.Duration("duration", 10*time.Second, "Length of the still capture")
	out := flag.String("out", "", "Calibration file to write (default: CALIBRATION_FILE)")
	record := flag.String("record", "", "Also record the capture as a replay CSV")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	log.SetLevel(config.Get().Level())

	opts := app.CalibrationOptions{
		Duration:   *duration,
		OutputPath: *out,
		RecordPath: *record,
		In:         os.Stdin,
		Out:        os.Stdout,
	}
	if err := app.RunCalibration(opts); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
