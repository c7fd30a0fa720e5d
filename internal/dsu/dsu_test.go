// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dsu

import (
	"context"
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

func clientRequest(msgType uint32, payload ...byte) []byte {
	p := newPacket(magicClient, 0xC0FFEE, msgType)
	p.bytes(payload...)
	return p.finish()
}

func padDataRequest(flags, slot uint8, mac [6]byte) []byte {
	return clientRequest(msgPadData, append([]byte{flags, slot}, mac[:]...)...)
}

func testServer(slot uint8) *Server {
	return &Server{
		serverID: 7,
		info:     slotInfo{slot: slot, connected: true, mac: [6]byte{2, 0, 0, 0, 0, slot + 1}},
		clients:  make(map[string]*subscriber),
		now:      time.Now,
	}
}

func TestParseRequest(t *testing.T) {
	req, err := parseRequest(clientRequest(msgVersion))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xC0FFEE), req.clientID)
	assert.Equal(t, msgVersion, req.msgType)
	assert.Empty(t, req.payload)

	// trailing garbage beyond the declared length is ignored
	b := append(clientRequest(msgPorts, 1, 0, 0, 0, 0), 0xFF, 0xFF)
	req, err = parseRequest(b)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 0}, req.payload)
}

func TestParseRequestErrors(t *testing.T) {
	good := clientRequest(msgVersion)

	_, err := parseRequest(good[:10])
	assert.ErrorIs(t, err, ErrShortPacket)

	tampered := append([]byte(nil), good...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = parseRequest(tampered)
	assert.ErrorIs(t, err, ErrBadCRC)

	server := versionResponse(1)
	_, err = parseRequest(server)
	assert.ErrorIs(t, err, ErrBadMagic)

	newer := append([]byte(nil), good...)
	binary.LittleEndian.PutUint16(newer[4:6], ProtocolVersion+1)
	_, err = parseRequest(newer)
	assert.ErrorIs(t, err, ErrBadVersion)

	long := append([]byte(nil), good...)
	binary.LittleEndian.PutUint16(long[6:8], 200)
	_, err = parseRequest(long)
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestPadDataLayout(t *testing.T) {
	info := slotInfo{slot: 1, connected: true, mac: [6]byte{2, 0, 0, 0, 0, 2}}
	m := MotionData{
		TimestampMicros: 123456789,
		AccelX:          0.25,
		AccelY:          1,
		AccelZ:          -0.5,
		GyroPitch:       10,
		GyroYaw:         -20,
		GyroRoll:        30,
	}
	b := padDataResponse(9, info, 42, m)

	require.Len(t, b, 100)
	assert.Equal(t, []byte("DSUS"), b[0:4])
	assert.Equal(t, uint16(ProtocolVersion), binary.LittleEndian.Uint16(b[4:6]))
	assert.Equal(t, uint16(100-headerSize), binary.LittleEndian.Uint16(b[6:8]))
	assert.Equal(t, checksum(b), binary.LittleEndian.Uint32(b[8:12]))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(b[12:16]))
	assert.Equal(t, msgPadData, binary.LittleEndian.Uint32(b[16:20]))

	assert.Equal(t, []byte{1, stateConnected, modelFullGyro, connectionUSB}, b[20:24])
	assert.Equal(t, info.mac[:], b[24:30])
	assert.Equal(t, uint8(batteryFull), b[30])
	assert.Equal(t, uint8(1), b[31])
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(b[32:36]))
	assert.Equal(t, []byte{128, 128, 128, 128}, b[40:44])

	assert.Equal(t, uint64(123456789), binary.LittleEndian.Uint64(b[68:76]))
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	assert.Equal(t, float32(0.25), f(76))
	assert.Equal(t, float32(1), f(80))
	assert.Equal(t, float32(-0.5), f(84))
	assert.Equal(t, float32(10), f(88))
	assert.Equal(t, float32(-20), f(92))
	assert.Equal(t, float32(30), f(96))
}

func TestHandleVersionAndPorts(t *testing.T) {
	s := testServer(0)
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}

	out := s.handle(clientRequest(msgVersion), addr)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(ProtocolVersion), binary.LittleEndian.Uint16(out[0][20:22]))

	// ask for slots 0..3: only slot 0 is connected
	out = s.handle(clientRequest(msgPorts, 4, 0, 0, 0, 0, 1, 2, 3), addr)
	require.Len(t, out, 4)
	for i, pkt := range out {
		assert.Equal(t, uint8(i), pkt[20], "slot")
		if i == 0 {
			assert.Equal(t, uint8(stateConnected), pkt[21])
		} else {
			assert.Equal(t, uint8(stateDisconnected), pkt[21])
		}
	}

	assert.Nil(t, s.handle([]byte("garbage"), addr))
}

func TestSubscriptionMatching(t *testing.T) {
	s := testServer(2)
	other := [6]byte{9, 9, 9, 9, 9, 9}

	tests := []struct {
		name  string
		flags uint8
		slot  uint8
		mac   [6]byte
		want  bool
	}{
		{"all", 0, 0, other, true},
		{"by slot", 1, 2, other, true},
		{"wrong slot", 1, 1, other, false},
		{"by mac", 2, 0, s.info.mac, true},
		{"wrong mac", 2, 2, other, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.wants(tt.flags, tt.slot, tt.mac))
		})
	}
}

func TestSubscriberTimeout(t *testing.T) {
	s := testServer(0)
	now := time.Unix(0, 0)
	s.now = func() time.Time { return now }
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5001}

	s.handle(padDataRequest(0, 0, [6]byte{}), addr)
	assert.Equal(t, 1, s.Subscribers())

	now = now.Add(4 * time.Second)
	s.handle(padDataRequest(1, 0, [6]byte{}), addr)
	now = now.Add(4 * time.Second)
	assert.Equal(t, 1, s.Subscribers())

	now = now.Add(2 * time.Second)
	assert.Equal(t, 0, s.Subscribers())
}

func TestServerLoopback(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", 0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	client, err := net.DialUDP("udp", nil, s.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write(padDataRequest(0, 0, [6]byte{}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Broadcast(FromMotion(time.UnixMicro(5000), motion.Vec3{X: 1, Y: 2, Z: 3}, motion.Vec3{Z: 1}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, err := client.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 100, n)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[32:36]))
	assert.Equal(t, uint64(5000), binary.LittleEndian.Uint64(buf[68:76]))
	// accel Z up becomes DSU Y, gyro Y (roll) flips into DSU Z
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[80:])))
	assert.Equal(t, float32(-2), math.Float32frombits(binary.LittleEndian.Uint32(buf[96:])))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestNewServerRejectsSlot(t *testing.T) {
	_, err := NewServer("127.0.0.1:0", 4)
	assert.Error(t, err)
}
