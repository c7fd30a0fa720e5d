// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"math/rand"
	"time"

	"github.com/relabs-tech/gamepad_motion/internal/imu"
	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

// MockBias is the constant gyro offset the mock source adds, deg/s.
var MockBias = motion.Vec3{X: 0.4, Y: -0.25, Z: 0.15}

const (
	mockCycle      = 10 * time.Second // swing for half, rest for half
	mockYawAmp     = 60.0             // deg/s
	mockGyroNoise  = 0.05             // deg/s
	mockAccelNoise = 0.002            // g
)

type mockSource struct {
	start time.Time
	now   func() time.Time
	rng   *rand.Rand
}

// NewMockSource creates a source for a controller lying flat that swings left
// and right for five seconds, then rests for five, with a constant gyro bias
// (MockBias) and a little sensor noise.
func NewMockSource() imu.Source {
	return newMockSource(time.Now, 1)
}

func newMockSource(now func() time.Time, seed int64) *mockSource {
	return &mockSource{start: now(), now: now, rng: rand.New(rand.NewSource(seed))}
}

func (m *mockSource) Next() (imu.Sample, error) {
	t := m.now()
	elapsed := t.Sub(m.start)
	phase := elapsed % mockCycle

	var yaw float64
	if phase < mockCycle/2 {
		// one full swing per half cycle, starting and ending at rest
		x := 2 * math.Pi * phase.Seconds() / (mockCycle / 2).Seconds()
		yaw = mockYawAmp * math.Sin(x)
	}

	noise := func(scale float64) float64 { return m.rng.NormFloat64() * scale }
	return imu.Sample{
		Source:    "mock",
		Gx:        MockBias.X + noise(mockGyroNoise),
		Gy:        MockBias.Y + noise(mockGyroNoise),
		Gz:        MockBias.Z + yaw + noise(mockGyroNoise),
		Ax:        noise(mockAccelNoise),
		Ay:        noise(mockAccelNoise),
		Az:        1 + noise(mockAccelNoise),
		Timestamp: t,
	}, nil
}

func (m *mockSource) Close() error { return nil }
