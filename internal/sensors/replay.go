// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/relabs-tech/gamepad_motion/internal/imu"
)

// replayHeader is the first row of a recording. Time is in seconds since the
// start of the recording.
var replayHeader = []string{"t", "gx", "gy", "gz", "ax", "ay", "az"}

// replayEpoch anchors recorded times so that timestamps are never zero.
var replayEpoch = time.Unix(0, 0).UTC()

type replaySource struct {
	file   io.Closer
	reader *csv.Reader
	row    int
}

// NewReplaySource plays back a CSV recording written by Recorder.
// Next returns io.EOF after the last row.
func NewReplaySource(path string) (imu.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	src, err := newReplayReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func newReplayReader(r io.ReadCloser) (*replaySource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(replayHeader)
	cr.Comment = '#'

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("replay: header: %w", err)
	}
	for i, h := range replayHeader {
		if head[i] != h {
			return nil, fmt.Errorf("replay: header column %d is %q, want %q", i+1, head[i], h)
		}
	}
	return &replaySource{file: r, reader: cr, row: 1}, nil
}

func (s *replaySource) Next() (imu.Sample, error) {
	rec, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return imu.Sample{}, io.EOF
	}
	if err != nil {
		return imu.Sample{}, fmt.Errorf("replay: %w", err)
	}
	s.row++

	var v [7]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(rec[i], 64); err != nil {
			return imu.Sample{}, fmt.Errorf("replay row %d column %s: %w", s.row, replayHeader[i], err)
		}
	}
	return imu.Sample{
		Source:    "replay",
		Timestamp: replayEpoch.Add(time.Duration(v[0] * float64(time.Second))),
		Gx:        v[1],
		Gy:        v[2],
		Gz:        v[3],
		Ax:        v[4],
		Ay:        v[5],
		Az:        v[6],
	}, nil
}

func (s *replaySource) Close() error { return s.file.Close() }

// Recorder writes samples in the format NewReplaySource reads.
type Recorder struct {
	w     *csv.Writer
	start time.Time
}

// NewRecorder writes the header row and returns a Recorder.
func NewRecorder(w io.Writer) (*Recorder, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(replayHeader); err != nil {
		return nil, fmt.Errorf("recorder: header: %w", err)
	}
	return &Recorder{w: cw}, nil
}

// Record appends one sample. Times are relative to the first recorded sample.
func (r *Recorder) Record(s imu.Sample) error {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if r.start.IsZero() {
		r.start = ts
	}
	f := func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
	t := math.Max(ts.Sub(r.start).Seconds(), 0)
	return r.w.Write([]string{f(t), f(s.Gx), f(s.Gy), f(s.Gz), f(s.Ax), f(s.Ay), f(s.Az)})
}

// Flush writes buffered rows to the underlying writer.
func (r *Recorder) Flush() error {
	r.w.Flush()
	return r.w.Error()
}

type recordingSource struct {
	imu.Source
	rec *Recorder
}

// NewRecordingSource returns a source that records every sample it passes
// through, so a live session can be replayed later.
func NewRecordingSource(src imu.Source, rec *Recorder) imu.Source {
	return &recordingSource{Source: src, rec: rec}
}

func (r *recordingSource) Next() (imu.Sample, error) {
	s, err := r.Source.Next()
	if err != nil {
		return s, err
	}
	if err := r.rec.Record(s); err != nil {
		return s, fmt.Errorf("recorder: %w", err)
	}
	return s, nil
}

func (r *recordingSource) Close() error {
	ferr := r.rec.Flush()
	if err := r.Source.Close(); err != nil {
		return err
	}
	return ferr
}
