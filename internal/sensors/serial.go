// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/gamepad_motion/internal/imu"
)

// lineSource reads text samples (see ParseLine) from a byte stream.
type lineSource struct {
	name   string
	port   io.ReadCloser
	reader *bufio.Reader
	bad    int
}

// NewSerialSource opens a serial port streaming one text sample per line,
// e.g. a microcontroller forwarding its IMU over USB.
func NewSerialSource(portName string, baudRate int) (imu.Source, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", portName, err)
	}
	log.Printf("serial: port opened on %s at %d baud", opts.PortName, opts.BaudRate)

	return newLineSource("serial", port), nil
}

func newLineSource(name string, r io.ReadCloser) *lineSource {
	return &lineSource{name: name, port: r, reader: bufio.NewReader(r)}
}

// Next blocks until a well-formed line arrives. Malformed lines are counted
// and skipped; a serial link usually starts mid-line.
func (s *lineSource) Next() (imu.Sample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return imu.Sample{}, fmt.Errorf("%s: read: %w", s.name, err)
		}

		sample, perr := ParseLine(line)
		switch {
		case perr == nil:
			sample.Source = s.name
			if sample.Timestamp.IsZero() {
				sample.Timestamp = time.Now()
			}
			return sample, nil
		case errors.Is(perr, errSkipLine):
		default:
			s.bad++
			log.WithField("count", s.bad).Debugf("%s: skipping line %q: %v", s.name, line, perr)
		}

		if err != nil {
			return imu.Sample{}, io.EOF
		}
	}
}

func (s *lineSource) Close() error {
	return s.port.Close()
}
