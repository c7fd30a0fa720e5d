// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibstore persists gyro calibration between runs. The motion
// engine keeps no state on disk; the app restores the offset at startup and
// writes it back on request or shutdown.
package calibstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

// ErrNotFound is returned by Load when no calibration file exists yet.
var ErrNotFound = errors.New("calibration file not found")

// Record is the on-disk calibration.
type Record struct {
	Offset     motion.CalibrationOffset `json:"offset"`
	Mode       motion.CalibrationMode   `json:"mode"`
	Confidence float64                  `json:"confidence"`
	SavedAt    time.Time                `json:"saved_at"`
}

// FromEngine captures the calibration state of g.
func FromEngine(g *motion.GamepadMotion) Record {
	return Record{
		Offset:     g.CalibrationOffset(),
		Mode:       g.CalibrationMode(),
		Confidence: g.AutoCalibrationConfidence(),
	}
}

// Apply restores the offset and confidence into g. The mode is left to the
// caller, since the configured mode usually wins over the saved one.
func (r Record) Apply(g *motion.GamepadMotion) {
	g.SetCalibrationOffset(r.Offset.Bias, r.Offset.Weight)
	g.SetAutoCalibrationConfidence(r.Confidence)
}

// Load reads a calibration file. A missing file yields ErrNotFound.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("calibstore: read %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("calibstore: decode %s: %w", path, err)
	}
	if !rec.Offset.Bias.IsFinite() || rec.Offset.Weight < 0 {
		return Record{}, fmt.Errorf("calibstore: %s holds an invalid offset", path)
	}
	return rec, nil
}

// Save writes rec atomically: a temp file in the same directory is renamed
// over path.
func Save(path string, rec Record) error {
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("calibstore: encode: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".calibration-*")
	if err != nil {
		return fmt.Errorf("calibstore: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("calibstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("calibstore: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("calibstore: %w", err)
	}
	return nil
}
