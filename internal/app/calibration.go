// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/gamepad_motion/internal/calibstore"
	"github.com/relabs-tech/gamepad_motion/internal/config"
	"github.com/relabs-tech/gamepad_motion/internal/imu"
	"github.com/relabs-tech/gamepad_motion/internal/motion"
	"github.com/relabs-tech/gamepad_motion/internal/sensors"
)

const (
	// Gyro spread while resting, deg/s
	stillStdGood = 0.1
	stillStdBad  = 0.5

	// |a| must stay this close to 1 g for the capture to count as resting
	stillAccelTolerance = 0.1

	// never report a hard zero unless the capture failed
	confFloor = 0.05
)

// CalibrationReport describes one guided still capture.
type CalibrationReport struct {
	Samples     int                      `json:"samples"`
	DurationSec float64                  `json:"duration_sec"`
	Offset      motion.CalibrationOffset `json:"offset"`
	GyroStdDev  motion.Vec3              `json:"gyro_stddev"`
	AccelMean   motion.Vec3              `json:"accel_mean"`
	Confidence  float64                  `json:"confidence"`
	Notes       []string                 `json:"notes,omitempty"`
}

// CalibrationOptions configures RunCalibration.
type CalibrationOptions struct {
	Duration   time.Duration
	OutputPath string // overrides CALIBRATION_FILE when set
	RecordPath string // optional replay CSV of the capture
	In         io.Reader
	Out        io.Writer
}

func stillnessConfidence(std motion.Vec3) float64 {
	// Use average std dev across axes.
	s := (std.X + std.Y + std.Z) / 3
	switch {
	case s <= stillStdGood:
		return 1.0
	case s >= stillStdBad:
		return confFloor
	default:
		t := (s - stillStdGood) / (stillStdBad - stillStdGood)
		return math.Max(1.0-0.95*t, confFloor)
	}
}

// vecStats accumulates mean and standard deviation per axis.
type vecStats struct {
	n          int
	sum, sumSq motion.Vec3
}

func (v *vecStats) add(x motion.Vec3) {
	v.n++
	v.sum = v.sum.Add(x)
	v.sumSq = v.sumSq.Add(motion.Vec3{X: x.X * x.X, Y: x.Y * x.Y, Z: x.Z * x.Z})
}

func (v *vecStats) mean() motion.Vec3 {
	if v.n == 0 {
		return motion.Vec3{}
	}
	return v.sum.Scale(1 / float64(v.n))
}

func (v *vecStats) stddev() motion.Vec3 {
	if v.n < 2 {
		return motion.Vec3{}
	}
	m := v.mean()
	sd := func(sumSq, mean float64) float64 {
		return math.Sqrt(math.Max(sumSq/float64(v.n)-mean*mean, 0))
	}
	return motion.Vec3{X: sd(v.sumSq.X, m.X), Y: sd(v.sumSq.Y, m.Y), Z: sd(v.sumSq.Z, m.Z)}
}

// captureStill runs continuous calibration on engine until the samples from
// src span d. When pace is non-nil one sample is read per tick.
func captureStill(src imu.Source, engine *motion.GamepadMotion, clock *imu.Clock, d time.Duration, pace <-chan time.Time) (CalibrationReport, error) {
	engine.ResetContinuousCalibration()
	engine.StartContinuousCalibration()
	defer engine.PauseContinuousCalibration()

	var (
		gyro, accel vecStats
		elapsed     float64
		rep         CalibrationReport
	)
	for elapsed < d.Seconds() {
		if pace != nil {
			<-pace
		}
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			rep.Notes = append(rep.Notes, "source ended before the capture finished")
			break
		}
		if err != nil {
			return CalibrationReport{}, err
		}
		dt := clock.DT(s)
		engine.ProcessMotion(s.Gyro(), s.Accel(), dt)
		gyro.add(s.Gyro())
		accel.add(s.Accel())
		elapsed += dt
	}
	if gyro.n == 0 {
		return CalibrationReport{}, errors.New("no samples captured")
	}

	rep.Samples = gyro.n
	rep.DurationSec = elapsed
	rep.Offset = engine.CalibrationOffset()
	rep.GyroStdDev = gyro.stddev()
	rep.AccelMean = accel.mean()
	rep.Confidence = stillnessConfidence(rep.GyroStdDev)

	if math.Abs(rep.AccelMean.Length()-1) > stillAccelTolerance {
		rep.Confidence = confFloor
		rep.Notes = append(rep.Notes, fmt.Sprintf("mean acceleration %.2f g, expected 1 g at rest", rep.AccelMean.Length()))
	}
	if rep.Confidence < 0.5 {
		rep.Notes = append(rep.Notes, "device was not still, consider repeating the capture")
	}
	return rep, nil
}

// RunCalibration guides the user through a still capture on the configured
// source and stores the resulting gyro offset.
func RunCalibration(opts CalibrationOptions) error {
	cfg := config.Get()
	in := bufio.NewReader(opts.In)
	out := opts.Out

	path := cfg.CalibrationFile
	if opts.OutputPath != "" {
		path = opts.OutputPath
	}
	if path == "" {
		return errors.New("no calibration file configured")
	}

	src, err := sensors.Open(cfg)
	if err != nil {
		return fmt.Errorf("open sample source: %w", err)
	}
	if opts.RecordPath != "" {
		f, err := os.Create(opts.RecordPath)
		if err != nil {
			src.Close()
			return fmt.Errorf("create recording: %w", err)
		}
		defer f.Close()
		rec, err := sensors.NewRecorder(f)
		if err != nil {
			src.Close()
			return err
		}
		src = sensors.NewRecordingSource(src, rec)
		log.Printf("recording samples to %s", opts.RecordPath)
	}
	defer src.Close()

	fmt.Fprintln(out, "=== Guided Gyro Calibration ===")
	fmt.Fprintf(out, "Source: %s, result goes to %s\n\n", cfg.SampleSource, path)
	fmt.Fprintln(out, "Place the controller on a stable surface and do not touch it.")
	fmt.Fprintf(out, "Press ENTER to start the capture (%s)...", opts.Duration)
	_, _ = in.ReadString('\n')

	var pace <-chan time.Time
	if cfg.SampleSource != "serial" && cfg.SampleSource != "replay" {
		ticker := time.NewTicker(time.Duration(cfg.SampleInterval) * time.Millisecond)
		defer ticker.Stop()
		pace = ticker.C
	}

	engine := motion.New()
	clock := imu.NewClock(time.Duration(cfg.SampleInterval) * time.Millisecond)
	rep, err := captureStill(src, engine, clock, opts.Duration, pace)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	b := rep.Offset.Bias
	fmt.Fprintf(out, "\nGyro bias (deg/s): X=%.3f Y=%.3f Z=%.3f | weight=%d\n", b.X, b.Y, b.Z, rep.Offset.Weight)
	fmt.Fprintf(out, "Gyro spread (deg/s): X=%.3f Y=%.3f Z=%.3f | confidence=%.2f\n",
		rep.GyroStdDev.X, rep.GyroStdDev.Y, rep.GyroStdDev.Z, rep.Confidence)
	for _, n := range rep.Notes {
		fmt.Fprintf(out, "note: %s\n", n)
	}

	engine.SetAutoCalibrationConfidence(rep.Confidence)
	record := calibstore.FromEngine(engine)
	record.Mode = cfg.Mode()
	record.SavedAt = time.Now()
	if err := calibstore.Save(path, record); err != nil {
		return err
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		if raw, err := json.Marshal(rep); err == nil {
			log.Debugf("calibration report: %s", raw)
		}
	}
	fmt.Fprintf(out, "\nSaved to %s\n", path)
	return nil
}
