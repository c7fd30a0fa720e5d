// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dsu serves motion data over the cemuhook DSU protocol (version
// 1001), which emulators use to read gyro and accelerometer data from an
// external program over UDP.
package dsu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
)

const (
	ProtocolVersion = 1001
	DefaultPort     = 26760

	headerSize = 16
	maxSlots   = 4

	msgVersion uint32 = 0x100000
	msgPorts   uint32 = 0x100001
	msgPadData uint32 = 0x100002
)

var (
	magicServer = [4]byte{'D', 'S', 'U', 'S'}
	magicClient = [4]byte{'D', 'S', 'U', 'C'}
)

var (
	ErrShortPacket = errors.New("dsu: packet too short")
	ErrBadMagic    = errors.New("dsu: bad magic")
	ErrBadVersion  = errors.New("dsu: unsupported protocol version")
	ErrBadCRC      = errors.New("dsu: crc mismatch")
)

// Slot states and descriptors reported in the shared controller header.
const (
	stateDisconnected = 0
	stateConnected    = 2
	modelFullGyro     = 2
	connectionUSB     = 1
	batteryFull       = 0x05
)

// request is a decoded client packet.
type request struct {
	clientID uint32
	msgType  uint32
	payload  []byte
}

// parseRequest validates a client packet and splits off its payload.
func parseRequest(b []byte) (request, error) {
	if len(b) < headerSize+4 {
		return request{}, ErrShortPacket
	}
	if [4]byte(b[0:4]) != magicClient {
		return request{}, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(b[4:6]); v > ProtocolVersion {
		return request{}, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	length := int(binary.LittleEndian.Uint16(b[6:8]))
	if headerSize+length > len(b) || length < 4 {
		return request{}, ErrShortPacket
	}
	b = b[:headerSize+length]

	want := binary.LittleEndian.Uint32(b[8:12])
	if checksum(b) != want {
		return request{}, ErrBadCRC
	}
	return request{
		clientID: binary.LittleEndian.Uint32(b[12:16]),
		msgType:  binary.LittleEndian.Uint32(b[16:20]),
		payload:  b[20:],
	}, nil
}

// checksum is the CRC32 of the packet with its CRC field taken as zero.
func checksum(b []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(b[:8])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(b[12:])
	return h.Sum32()
}

// packet builds a message with a header; finish fills in length and CRC.
type packet struct {
	buf []byte
}

func newPacket(magic [4]byte, id, msgType uint32) *packet {
	p := &packet{buf: make([]byte, headerSize, 100)}
	copy(p.buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(p.buf[4:6], ProtocolVersion)
	binary.LittleEndian.PutUint32(p.buf[12:16], id)
	p.u32(msgType)
	return p
}

func (p *packet) u8(v uint8)   { p.buf = append(p.buf, v) }
func (p *packet) u16(v uint16) { p.buf = binary.LittleEndian.AppendUint16(p.buf, v) }
func (p *packet) u32(v uint32) { p.buf = binary.LittleEndian.AppendUint32(p.buf, v) }
func (p *packet) u64(v uint64) { p.buf = binary.LittleEndian.AppendUint64(p.buf, v) }
func (p *packet) f32(v float64) {
	p.u32(math.Float32bits(float32(v)))
}
func (p *packet) bytes(b ...byte) { p.buf = append(p.buf, b...) }

func (p *packet) finish() []byte {
	binary.LittleEndian.PutUint16(p.buf[6:8], uint16(len(p.buf)-headerSize))
	binary.LittleEndian.PutUint32(p.buf[8:12], checksum(p.buf))
	return p.buf
}

// slotInfo is the shared 11-byte controller header.
type slotInfo struct {
	slot      uint8
	connected bool
	mac       [6]byte
}

func (p *packet) slotHeader(s slotInfo) {
	p.u8(s.slot)
	if !s.connected {
		p.bytes(stateDisconnected, 0, 0)
		p.bytes(make([]byte, 6)...)
		p.u8(0)
		return
	}
	p.bytes(stateConnected, modelFullGyro, connectionUSB)
	p.bytes(s.mac[:]...)
	p.u8(batteryFull)
}

func versionResponse(serverID uint32) []byte {
	p := newPacket(magicServer, serverID, msgVersion)
	p.u16(ProtocolVersion)
	return p.finish()
}

func portInfoResponse(serverID uint32, s slotInfo) []byte {
	p := newPacket(magicServer, serverID, msgPorts)
	p.slotHeader(s)
	p.u8(0)
	return p.finish()
}

// MotionData is one motion report in DSU axes: accel in g, gyro in deg/s.
type MotionData struct {
	TimestampMicros              uint64
	AccelX, AccelY, AccelZ       float64
	GyroPitch, GyroYaw, GyroRoll float64
}

const neutralStick = 128

func padDataResponse(serverID uint32, s slotInfo, counter uint32, m MotionData) []byte {
	p := newPacket(magicServer, serverID, msgPadData)
	p.slotHeader(s)
	p.u8(1) // active
	p.u32(counter)
	p.bytes(0, 0)                                                   // button bitmasks
	p.bytes(0, 0)                                                   // home, touch
	p.bytes(neutralStick, neutralStick, neutralStick, neutralStick) // LX LY RX RY
	p.bytes(make([]byte, 4)...)                                     // dpad analog
	p.bytes(make([]byte, 4)...)                                     // face buttons analog
	p.bytes(make([]byte, 4)...)                                     // R1 L1 R2 L2
	p.bytes(make([]byte, 12)...)                                    // two touch points
	p.u64(m.TimestampMicros)
	p.f32(m.AccelX)
	p.f32(m.AccelY)
	p.f32(m.AccelZ)
	p.f32(m.GyroPitch)
	p.f32(m.GyroYaw)
	p.f32(m.GyroRoll)
	return p.finish()
}
