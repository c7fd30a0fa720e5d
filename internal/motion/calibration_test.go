// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetStoreFirstSampleBecomesBias(t *testing.T) {
	s := newOffsetStore(500)
	s.addSample(Vec3{1, -2, 3})

	got := s.get()
	assert.Equal(t, Vec3{1, -2, 3}, got.Bias)
	assert.Equal(t, 1, got.Weight)
}

func TestOffsetStoreIncrementalMean(t *testing.T) {
	s := newOffsetStore(500)
	for _, x := range []float64{1, 2, 3, 4} {
		s.addSample(Vec3{X: x})
	}

	got := s.get()
	assert.InDelta(t, 2.5, got.Bias.X, 1e-12)
	assert.Equal(t, 4, got.Weight)
}

func TestOffsetStoreWeightCap(t *testing.T) {
	s := newOffsetStore(10)
	for i := 0; i < 100; i++ {
		s.addSample(Vec3{Y: 1})
	}
	assert.Equal(t, 10, s.get().Weight)

	// at the cap each new sample still moves the bias by 1/cap
	s.addSample(Vec3{Y: 11})
	assert.InDelta(t, 2, s.get().Bias.Y, 1e-12)
	assert.Equal(t, 10, s.get().Weight)
}

func TestOffsetStoreSetClampsWeight(t *testing.T) {
	tests := []struct {
		name   string
		weight int
		want   int
	}{
		{"negative", -5, 0},
		{"zero", 0, 0},
		{"inside", 42, 42},
		{"above cap", 9000, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newOffsetStore(500)
			s.set(Vec3{Z: 1}, tt.weight)
			assert.Equal(t, tt.want, s.get().Weight)
			assert.Equal(t, Vec3{Z: 1}, s.get().Bias)
		})
	}
}

func TestOffsetStoreIgnoresNonFinite(t *testing.T) {
	s := newOffsetStore(500)
	s.set(Vec3{1, 1, 1}, 3)

	s.set(Vec3{X: math.NaN()}, 10)
	s.addSample(Vec3{Y: math.Inf(1)})
	s.addSampleWeighted(Vec3{Z: 4}, math.NaN())
	s.addSampleWeighted(Vec3{Z: 4}, 0)

	assert.Equal(t, CalibrationOffset{Bias: Vec3{1, 1, 1}, Weight: 3}, s.get())
}

func TestOffsetStoreWeightedStep(t *testing.T) {
	s := newOffsetStore(500)
	s.addSampleWeighted(Vec3{X: 10}, 0.25)

	assert.InDelta(t, 2.5, s.get().Bias.X, 1e-12)
	assert.Equal(t, 1, s.get().Weight)
}

func TestOffsetStoreResetKeepsRunningFlag(t *testing.T) {
	s := newOffsetStore(500)
	s.startContinuous()
	s.addSample(Vec3{X: 3})

	s.resetContinuous()
	assert.Equal(t, CalibrationOffset{}, s.get())
	assert.True(t, s.continuous)

	s.pauseContinuous()
	assert.False(t, s.continuous)
}
