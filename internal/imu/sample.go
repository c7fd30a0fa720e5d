// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"time"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

// Sample is one gyro+accel reading in physical units.
type Sample struct {
	Source string `json:"source"`

	Gx float64 `json:"gx"` // gyro, deg/s
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`

	Ax float64 `json:"ax"` // accel, g
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	// Timestamp is when the sample was taken. Zero if the source has no clock.
	Timestamp time.Time `json:"timestamp"`
}

func (s Sample) Gyro() motion.Vec3  { return motion.Vec3{X: s.Gx, Y: s.Gy, Z: s.Gz} }
func (s Sample) Accel() motion.Vec3 { return motion.Vec3{X: s.Ax, Y: s.Ay, Z: s.Az} }

// Source is anything that can provide samples over time: hardware, a serial
// stream, a recording or the mock generator.
type Source interface {
	Next() (Sample, error)
	Close() error
}

// Raw is a sample in sensor counts, as read from an MPU-class device.
type Raw struct {
	Ax int16 `json:"ax"`
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"`
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// Counts per unit at the most sensitive range (±2g, ±250°/s); each range
// step halves them.
const (
	accelCountsPerG   = 16384.0
	gyroCountsPerDegS = 131.0
)

// Scale converts counts to g and deg/s for the given range settings
// (0=±2g … 3=±16g, 0=±250°/s … 3=±2000°/s).
func (r Raw) Scale(accelRange, gyroRange byte) Sample {
	aDiv := accelCountsPerG / float64(uint(1)<<(accelRange&3))
	gDiv := gyroCountsPerDegS / float64(uint(1)<<(gyroRange&3))
	return Sample{
		Ax: float64(r.Ax) / aDiv,
		Ay: float64(r.Ay) / aDiv,
		Az: float64(r.Az) / aDiv,
		Gx: float64(r.Gx) / gDiv,
		Gy: float64(r.Gy) / gDiv,
		Gz: float64(r.Gz) / gDiv,
	}
}

// Clock turns sample timestamps into frame durations.
type Clock struct {
	last     time.Time
	fallback time.Duration
	maxDT    time.Duration
}

// NewClock returns a Clock that uses fallback when a sample carries no usable
// timestamp and clamps gaps longer than 10 fallback periods, e.g. after a
// stall, so one late frame does not look like a huge rotation.
func NewClock(fallback time.Duration) *Clock {
	return &Clock{fallback: fallback, maxDT: 10 * fallback}
}

// DT returns the time since the previous sample in seconds.
func (c *Clock) DT(s Sample) float64 {
	if s.Timestamp.IsZero() {
		return c.fallback.Seconds()
	}
	defer func() { c.last = s.Timestamp }()
	if c.last.IsZero() {
		return c.fallback.Seconds()
	}
	dt := s.Timestamp.Sub(c.last)
	if dt > c.maxDT {
		dt = c.maxDT
	}
	return dt.Seconds()
}
