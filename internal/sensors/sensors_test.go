// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gamepad_motion/internal/config"
	"github.com/relabs-tech/gamepad_motion/internal/imu"
	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

func TestParseLine(t *testing.T) {
	s, err := ParseLine("1.5, -2, 3  0 0.5 0.866")
	require.NoError(t, err)
	assert.Equal(t, motion.Vec3{X: 1.5, Y: -2, Z: 3}, s.Gyro())
	assert.Equal(t, motion.Vec3{Y: 0.5, Z: 0.866}, s.Accel())
	assert.True(t, s.Timestamp.IsZero())

	s, err = ParseLine("0;0;0;0;0;1;1500000\r\n")
	require.NoError(t, err)
	assert.Equal(t, time.UnixMicro(1_500_000), s.Timestamp)
}

func TestParseLineErrors(t *testing.T) {
	for _, line := range []string{
		"1,2,3",
		"1,2,3,4,5,6,7,8",
		"1,2,x,4,5,6",
		"1,2,3,4,5,6,-7",
	} {
		_, err := ParseLine(line)
		assert.ErrorIs(t, err, ErrMalformedLine, line)
	}

	for _, line := range []string{"", "   ", "# gx gy gz ax ay az"} {
		_, err := ParseLine(line)
		assert.ErrorIs(t, err, errSkipLine)
	}
}

func TestLineSourceSkipsNoise(t *testing.T) {
	input := "7,8,9\n# header\n\n1,2,3,0,0,1\n4 5 6 0.1 0.2 0.9 1000\n7,8,9,0,0,1"
	src := newLineSource("test", io.NopCloser(strings.NewReader(input)))
	defer src.Close()

	var got []imu.Sample
	for {
		s, err := src.Next()
		if err != nil {
			assert.True(t, errors.Is(err, io.EOF), "%v", err)
			break
		}
		got = append(got, s)
	}

	require.Len(t, got, 3)
	assert.Equal(t, 1, src.bad)
	assert.Equal(t, "test", got[0].Source)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, time.UnixMicro(1000), got[1].Timestamp)
	assert.Equal(t, motion.Vec3{X: 7, Y: 8, Z: 9}, got[2].Gyro())
}

func TestRecorderReplayRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	require.NoError(t, err)

	t0 := time.Now()
	in := []imu.Sample{
		{Gx: 1, Gy: 2, Gz: 3, Az: 1, Timestamp: t0},
		{Gx: -0.5, Ay: 0.25, Az: 0.75, Timestamp: t0.Add(10 * time.Millisecond)},
	}
	for _, s := range in {
		require.NoError(t, rec.Record(s))
	}
	require.NoError(t, rec.Flush())
	assert.True(t, strings.HasPrefix(buf.String(), "t,gx,gy,gz,ax,ay,az\n"))

	src, err := newReplayReader(io.NopCloser(&buf))
	require.NoError(t, err)

	first, err := src.Next()
	require.NoError(t, err)
	second, err := src.Next()
	require.NoError(t, err)
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)

	assert.Equal(t, in[0].Gyro(), first.Gyro())
	assert.Equal(t, in[1].Accel(), second.Accel())
	assert.Equal(t, 10*time.Millisecond, second.Timestamp.Sub(first.Timestamp))

	clock := imu.NewClock(time.Second)
	clock.DT(first)
	assert.InDelta(t, 0.01, clock.DT(second), 1e-9)
}

func TestRecordingSource(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	require.NoError(t, err)

	inner := newMockSource(func() time.Time { return time.Unix(5, 0) }, 3)
	src := NewRecordingSource(inner, rec)

	s, err := src.Next()
	require.NoError(t, err)
	require.NoError(t, src.Close())

	replay, err := newReplayReader(io.NopCloser(&buf))
	require.NoError(t, err)
	got, err := replay.Next()
	require.NoError(t, err)
	assert.InDelta(t, s.Gz, got.Gz, 1e-12)
	assert.InDelta(t, s.Az, got.Az, 1e-12)
}

func TestReplayRejectsBadInput(t *testing.T) {
	_, err := newReplayReader(io.NopCloser(strings.NewReader("time,a,b,c,d,e,f\n")))
	assert.ErrorContains(t, err, "header column 1")

	src, err := newReplayReader(io.NopCloser(strings.NewReader("t,gx,gy,gz,ax,ay,az\n0,1,2,x,0,0,1\n")))
	require.NoError(t, err)
	_, err = src.Next()
	assert.ErrorContains(t, err, "row 2 column gz")
}

func TestMockSource(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	m := newMockSource(clock, 42)

	// a quarter into the swing the yaw rate peaks
	now = now.Add(1250 * time.Millisecond)
	s, err := m.Next()
	require.NoError(t, err)
	assert.InDelta(t, mockYawAmp+MockBias.Z, s.Gz, 0.3)
	assert.Equal(t, now, s.Timestamp)

	// at rest the average reading is the bias
	now = time.Unix(1006, 0)
	var sum motion.Vec3
	const n = 2000
	for i := 0; i < n; i++ {
		s, err := m.Next()
		require.NoError(t, err)
		sum = sum.Add(s.Gyro())
		assert.InDelta(t, 1, s.Accel().Length(), 0.02)
	}
	mean := sum.Scale(1.0 / n)
	assert.InDelta(t, 0, mean.Sub(MockBias).Length(), 0.01)
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	src, err := Open(cfg)
	require.NoError(t, err)
	assert.NoError(t, src.Close())

	cfg.SampleSource = "replay"
	cfg.ReplayFile = t.TempDir() + "/missing.csv"
	_, err = Open(cfg)
	assert.Error(t, err)

	cfg.SampleSource = "carrier-pigeon"
	_, err = Open(cfg)
	assert.ErrorContains(t, err, "unknown sample source")
}
