// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

// CalibrationOffset is the gyro bias estimate (deg/s) and the number of
// samples it is built from. Weight never exceeds the configured cap.
type CalibrationOffset struct {
	Bias   Vec3 `json:"bias"`
	Weight int  `json:"weight"`
}

// offsetStore keeps the running gyro bias as an incremental weighted mean.
type offsetStore struct {
	offset     CalibrationOffset
	cap        int
	continuous bool // fold every frame into the bias
}

func newOffsetStore(weightCap int) offsetStore {
	return offsetStore{cap: weightCap}
}

func (s *offsetStore) get() CalibrationOffset {
	return s.offset
}

// set overwrites the offset, clamping the weight into [0, cap]. A non-finite
// bias is ignored.
func (s *offsetStore) set(bias Vec3, weight int) {
	if !bias.IsFinite() {
		return
	}
	if weight < 0 {
		weight = 0
	}
	if weight > s.cap {
		weight = s.cap
	}
	s.offset = CalibrationOffset{Bias: bias, Weight: weight}
}

func (s *offsetStore) startContinuous() { s.continuous = true }

func (s *offsetStore) pauseContinuous() { s.continuous = false }

// resetContinuous discards everything learned so far. Whether continuous
// calibration is running is left unchanged.
func (s *offsetStore) resetContinuous() {
	s.offset = CalibrationOffset{}
}

// addSample folds one at-rest gyro reading into the bias with full influence.
func (s *offsetStore) addSample(sample Vec3) {
	s.addSampleWeighted(sample, 1)
}

// addSampleWeighted folds sample into the bias with its step scaled by
// influence in [0,1]:
//
//	n = min(weight+1, cap)
//	bias += (sample - bias) * influence / n
//	weight = n
//
// With weight 0 and full influence the sample becomes the bias outright.
func (s *offsetStore) addSampleWeighted(sample Vec3, influence float64) {
	if !sample.IsFinite() || !isFinite(influence) || influence <= 0 {
		return
	}
	influence = clamp(influence, 0, 1)
	n := s.offset.Weight + 1
	if n > s.cap {
		n = s.cap
	}
	step := influence / float64(n)
	s.offset.Bias = s.offset.Bias.Add(sample.Sub(s.offset.Bias).Scale(step))
	s.offset.Weight = n
}
