// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gamepad_motion/internal/imu"
)

var (
	accelRangeG   = []int{2, 4, 8, 16}
	gyroRangeDegS = []int{250, 500, 1000, 2000}
)

type mpu9250Source struct {
	dev        *mpu9250.MPU9250
	accelRange byte
	gyroRange  byte
}

// NewMPU9250Source initializes an MPU9250 over SPI. accelRange and gyroRange
// use the register encoding (0-3).
func NewMPU9250Source(spiDev, csPin string, accelRange, gyroRange byte) (imu.Source, error) {
	if accelRange > 3 || gyroRange > 3 {
		return nil, fmt.Errorf("mpu9250: range out of bounds (accel %d, gyro %d)", accelRange, gyroRange)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("mpu9250: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("mpu9250: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("mpu9250: initialization: %w", err)
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("mpu9250: set accel range: %w", err)
	}
	log.Printf("mpu9250: accelerometer range set to %d (±%dg)", accelRange, accelRangeG[accelRange])

	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("mpu9250: set gyro range: %w", err)
	}
	log.Printf("mpu9250: gyroscope range set to %d (±%d°/s)", gyroRange, gyroRangeDegS[gyroRange])

	// The motion engine estimates gyro bias itself, so a failed self-test is
	// only worth a warning. The on-chip Calibrate is skipped: it would fight
	// the engine's offset.
	if res, err := dev.SelfTest(); err != nil {
		log.Warnf("mpu9250: self-test failed: %v", err)
	} else {
		log.WithFields(log.Fields{
			"accel_x": res.AccelDeviation.X, "accel_y": res.AccelDeviation.Y, "accel_z": res.AccelDeviation.Z,
			"gyro_x": res.GyroDeviation.X, "gyro_y": res.GyroDeviation.Y, "gyro_z": res.GyroDeviation.Z,
		}).Info("mpu9250: self-test passed (deviation %)")
	}

	return &mpu9250Source{dev: dev, accelRange: accelRange, gyroRange: gyroRange}, nil
}

func (s *mpu9250Source) readRaw() (imu.Raw, error) {
	var r imu.Raw
	var err error
	if r.Ax, err = s.dev.GetAccelerationX(); err != nil {
		return r, fmt.Errorf("mpu9250 accel X: %w", err)
	}
	if r.Ay, err = s.dev.GetAccelerationY(); err != nil {
		return r, fmt.Errorf("mpu9250 accel Y: %w", err)
	}
	if r.Az, err = s.dev.GetAccelerationZ(); err != nil {
		return r, fmt.Errorf("mpu9250 accel Z: %w", err)
	}
	if r.Gx, err = s.dev.GetRotationX(); err != nil {
		return r, fmt.Errorf("mpu9250 gyro X: %w", err)
	}
	if r.Gy, err = s.dev.GetRotationY(); err != nil {
		return r, fmt.Errorf("mpu9250 gyro Y: %w", err)
	}
	if r.Gz, err = s.dev.GetRotationZ(); err != nil {
		return r, fmt.Errorf("mpu9250 gyro Z: %w", err)
	}
	return r, nil
}

// Next reads one accel+gyro sample and scales it to g and deg/s.
func (s *mpu9250Source) Next() (imu.Sample, error) {
	raw, err := s.readRaw()
	if err != nil {
		return imu.Sample{}, err
	}
	sample := raw.Scale(s.accelRange, s.gyroRange)
	sample.Source = "mpu9250"
	sample.Timestamp = time.Now()
	return sample, nil
}

func (s *mpu9250Source) Close() error { return nil }
