// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package dsu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

// subscriberTimeout drops clients that stop renewing their pad data request.
const subscriberTimeout = 5 * time.Second

// Server answers DSU requests for a single controller slot and pushes motion
// to every subscribed client.
type Server struct {
	conn     *net.UDPConn
	serverID uint32
	info     slotInfo

	mu      sync.Mutex
	clients map[string]*subscriber
	counter uint32
	now     func() time.Time
}

type subscriber struct {
	addr     *net.UDPAddr
	lastSeen time.Time
}

// NewServer listens on addr (e.g. "127.0.0.1:26760") and reports one
// connected controller in slot.
func NewServer(addr string, slot int) (*Server, error) {
	if slot < 0 || slot >= maxSlots {
		return nil, fmt.Errorf("dsu: slot %d out of range 0-%d", slot, maxSlots-1)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dsu: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dsu: listen %s: %w", addr, err)
	}

	s := &Server{
		conn:     conn,
		serverID: rand.Uint32(),
		info: slotInfo{
			slot:      uint8(slot),
			connected: true,
			// locally administered, derived from the slot
			mac: [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, byte(slot + 1)},
		},
		clients: make(map[string]*subscriber),
		now:     time.Now,
	}
	return s, nil
}

// Addr is the local address the server is bound to.
func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

// Serve handles incoming requests until ctx is done or the socket is closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("dsu: read: %w", err)
		}
		for _, reply := range s.handle(buf[:n], addr) {
			if _, err := s.conn.WriteToUDP(reply, addr); err != nil {
				log.Debugf("dsu: reply to %s: %v", addr, err)
			}
		}
	}
}

// handle decodes one client packet and returns the replies for it.
func (s *Server) handle(b []byte, addr *net.UDPAddr) [][]byte {
	req, err := parseRequest(b)
	if err != nil {
		log.Debugf("dsu: dropping packet from %s: %v", addr, err)
		return nil
	}

	switch req.msgType {
	case msgVersion:
		return [][]byte{versionResponse(s.serverID)}

	case msgPorts:
		if len(req.payload) < 4 {
			return nil
		}
		count := int(int32(binary.LittleEndian.Uint32(req.payload[0:4])))
		slots := req.payload[4:]
		if count < 0 || count > len(slots) {
			count = len(slots)
		}
		if count > maxSlots {
			count = maxSlots
		}
		var out [][]byte
		for _, slot := range slots[:count] {
			info := slotInfo{slot: slot}
			if slot == s.info.slot {
				info = s.info
			}
			out = append(out, portInfoResponse(s.serverID, info))
		}
		return out

	case msgPadData:
		if len(req.payload) < 8 {
			return nil
		}
		flags, slot := req.payload[0], req.payload[1]
		mac := [6]byte(req.payload[2:8])
		if s.wants(flags, slot, mac) {
			s.subscribe(addr)
		}
		return nil

	default:
		log.Debugf("dsu: unknown message type %#x from %s", req.msgType, addr)
		return nil
	}
}

// wants reports whether a pad data request covers this server's slot.
// Flags 0 means every controller, bit 0 selects by slot, bit 1 by MAC.
func (s *Server) wants(flags, slot uint8, mac [6]byte) bool {
	if flags == 0 {
		return true
	}
	if flags&1 != 0 && slot == s.info.slot {
		return true
	}
	return flags&2 != 0 && mac == s.info.mac
}

func (s *Server) subscribe(addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	if sub, ok := s.clients[key]; ok {
		sub.lastSeen = s.now()
		return
	}
	s.clients[key] = &subscriber{addr: addr, lastSeen: s.now()}
	log.Printf("dsu: client %s subscribed to slot %d", addr, s.info.slot)
}

// Subscribers returns the number of live subscriptions.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	return len(s.clients)
}

func (s *Server) expireLocked() {
	now := s.now()
	for key, sub := range s.clients {
		if now.Sub(sub.lastSeen) > subscriberTimeout {
			delete(s.clients, key)
			log.Printf("dsu: client %s timed out", key)
		}
	}
}

// Broadcast sends one motion report to every live subscriber.
func (s *Server) Broadcast(m MotionData) {
	s.mu.Lock()
	s.expireLocked()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return
	}
	s.counter++
	pkt := padDataResponse(s.serverID, s.info, s.counter, m)
	targets := make([]*net.UDPAddr, 0, len(s.clients))
	for _, sub := range s.clients {
		targets = append(targets, sub.addr)
	}
	s.mu.Unlock()

	for _, addr := range targets {
		if _, err := s.conn.WriteToUDP(pkt, addr); err != nil {
			log.Debugf("dsu: send to %s: %v", addr, err)
		}
	}
}

func (s *Server) Close() error { return s.conn.Close() }

// FromMotion converts device-frame readings (X right, Y forward, Z up) into
// DSU axes (X right, Y up, Z towards the player).
func FromMotion(ts time.Time, gyro, accel motion.Vec3) MotionData {
	return MotionData{
		TimestampMicros: uint64(ts.UnixMicro()),
		AccelX:          accel.X,
		AccelY:          accel.Z,
		AccelZ:          -accel.Y,
		GyroPitch:       gyro.X,
		GyroYaw:         gyro.Z,
		GyroRoll:        -gyro.Y,
	}
}
