// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/gamepad_motion/internal/imu"
)

// ErrMalformedLine is returned for text lines that are not a sample.
var ErrMalformedLine = errors.New("malformed sample line")

// errSkipLine marks comments and blank lines.
var errSkipLine = errors.New("skip line")

// ParseLine parses one text sample as streamed by a microcontroller:
//
//	gx gy gz ax ay az [timestamp_us]
//
// Fields are separated by commas and/or whitespace. Gyro is in deg/s, accel
// in g, the optional timestamp in microseconds since an arbitrary epoch.
func ParseLine(line string) (imu.Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return imu.Sample{}, errSkipLine
	}
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	if len(fields) != 6 && len(fields) != 7 {
		return imu.Sample{}, fmt.Errorf("%w: want 6 or 7 fields, got %d", ErrMalformedLine, len(fields))
	}

	var v [6]float64
	for i := range v {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return imu.Sample{}, fmt.Errorf("%w: field %d: %v", ErrMalformedLine, i+1, err)
		}
		v[i] = f
	}
	s := imu.Sample{Gx: v[0], Gy: v[1], Gz: v[2], Ax: v[3], Ay: v[4], Az: v[5]}

	if len(fields) == 7 {
		us, err := strconv.ParseUint(fields[6], 10, 64)
		if err != nil {
			return imu.Sample{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedLine, err)
		}
		s.Timestamp = time.UnixMicro(int64(us))
	}
	return s, nil
}
