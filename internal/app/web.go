// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/gamepad_motion/internal/config"
	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSResponse is every message the server writes on /ws/motion.
type WSResponse struct {
	Type    string         `json:"type"` // "motion", "ack" or "error"
	Motion  *MotionMessage `json:"motion,omitempty"`
	Command string         `json:"command,omitempty"`
	Message string         `json:"message,omitempty"`
}

const wsSendBuffer = 32

type wsClient struct {
	send chan WSResponse
}

// webState is the latest producer output as seen over MQTT, plus the
// websocket clients that want every update.
type webState struct {
	mu         sync.RWMutex
	motion     MotionMessage
	haveMotion bool
	calib      motion.CalibrationStatus
	haveCalib  bool
	clients    map[*wsClient]struct{}
}

func newWebState() *webState {
	return &webState{clients: make(map[*wsClient]struct{})}
}

func (s *webState) setMotion(m MotionMessage) {
	s.mu.Lock()
	s.motion = m
	s.haveMotion = true
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	msg := WSResponse{Type: "motion", Motion: &m}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// slow client, it will catch up on the next frame
		}
	}
}

func (s *webState) setCalibration(c motion.CalibrationStatus) {
	s.mu.Lock()
	s.calib = c
	s.haveCalib = true
	s.mu.Unlock()
}

func (s *webState) add(c *wsClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *webState) remove(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// commandSender forwards a validated command to the producer.
type commandSender func(Command) error

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func newWebHandler(state *webState, send commandSender, staticDir string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/motion", func(w http.ResponseWriter, r *http.Request) {
		state.mu.RLock()
		m, ok := state.motion, state.haveMotion
		state.mu.RUnlock()

		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, m)
	})

	mux.HandleFunc("/api/calibration", func(w http.ResponseWriter, r *http.Request) {
		state.mu.RLock()
		c, ok := state.calib, state.haveCalib
		state.mu.RUnlock()

		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, c)
	})

	mux.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd, err := ParseCommand(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := send(cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/ws/motion", func(w http.ResponseWriter, r *http.Request) {
		handleMotionWS(state, send, w, r)
	})

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// handleMotionWS streams motion frames to the client and accepts commands
// from it. Only the writer goroutine touches the connection for writes.
func handleMotionWS(state *webState, send commandSender, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{send: make(chan WSResponse, wsSendBuffer)}
	state.add(client)
	defer state.remove(client)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case msg := <-client.send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Debugf("websocket write error: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	log.Printf("websocket client connected from %s", r.RemoteAddr)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			return
		}

		reply := WSResponse{Type: "ack"}
		cmd, err := ParseCommand(data)
		if err == nil {
			reply.Command = cmd.Type
			err = send(cmd)
		}
		if err != nil {
			reply = WSResponse{Type: "error", Command: cmd.Type, Message: err.Error()}
		}
		select {
		case client.send <- reply:
		case <-done:
		}
	}
}

// RunWeb serves the latest motion state over HTTP and a websocket, and
// forwards commands from browsers to the producer's control topic.
func RunWeb() error {
	cfg := config.Get()
	state := newWebState()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	subscriptions := map[string]mqtt.MessageHandler{
		cfg.TopicMotion: func(_ mqtt.Client, msg mqtt.Message) {
			var m MotionMessage
			if err := json.Unmarshal(msg.Payload(), &m); err != nil {
				log.Printf("MQTT payload unmarshal error: %v", err)
				return
			}
			state.setMotion(m)
		},
		cfg.TopicCalibration: func(_ mqtt.Client, msg mqtt.Message) {
			var c motion.CalibrationStatus
			if err := json.Unmarshal(msg.Payload(), &c); err != nil {
				log.Printf("MQTT payload unmarshal error: %v", err)
				return
			}
			state.setCalibration(c)
		},
	}
	for topic, handler := range subscriptions {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("subscribed to MQTT topic %s", topic)
	}

	// commands are not retained, a restarted producer must not replay them
	send := func(cmd Command) error {
		payload, err := json.Marshal(cmd)
		if err != nil {
			return err
		}
		token := client.Publish(cfg.TopicControl, 1, false, payload)
		token.Wait()
		return token.Error()
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, newWebHandler(state, send, "web"))
}
