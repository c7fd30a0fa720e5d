// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

type commandLog struct {
	mu   sync.Mutex
	cmds []Command
	err  error
}

func (l *commandLog) send(c Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.cmds = append(l.cmds, c)
	return nil
}

func (l *commandLog) sent() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Command(nil), l.cmds...)
}

func TestWebAPIBeforeAndAfterData(t *testing.T) {
	state := newWebState()
	h := newWebHandler(state, (&commandLog{}).send, "")

	for _, path := range []string{"/api/motion", "/api/calibration"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	snap := motion.New().Snapshot(motion.DefaultYawRelaxFactor, motion.DefaultSideReductionThreshold)
	state.setMotion(MotionMessage{Time: time.Unix(10, 0).UTC(), Snapshot: snap})
	state.setCalibration(motion.CalibrationStatus{Mode: motion.Automatic, Steady: true, Confidence: 0.5})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/motion", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var m MotionMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, time.Unix(10, 0).UTC(), m.Time)
	assert.Equal(t, motion.Vec3{Z: 1}, m.Gravity)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calibration", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"mode":"automatic","offset":{"bias":{"x":0,"y":0,"z":0},"weight":0},"calibrating":false,"steady":true,"confidence":0.5}`,
		rec.Body.String())
}

func TestWebCommandEndpoint(t *testing.T) {
	cmds := &commandLog{}
	h := newWebHandler(newWebState(), cmds.send, "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"type":"set_mode","mode":"continuous"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, cmds.sent(), 1)
	assert.Equal(t, "continuous", cmds.sent()[0].Mode)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"type":"warp"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	cmds.err = errors.New("broker down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"type":"reset"}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMotionWebsocket(t *testing.T) {
	state := newWebState()
	cmds := &commandLog{}
	srv := httptest.NewServer(newWebHandler(state, cmds.send, ""))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/motion"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// the handler registers the client right after the upgrade
	require.Eventually(t, func() bool {
		state.mu.RLock()
		defer state.mu.RUnlock()
		return len(state.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	state.setMotion(MotionMessage{Snapshot: motion.Snapshot{CalibratedGyro: motion.Vec3{Z: 12}}})

	var resp WSResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "motion", resp.Type)
	require.NotNil(t, resp.Motion)
	assert.Equal(t, 12.0, resp.Motion.CalibratedGyro.Z)

	require.NoError(t, conn.WriteJSON(Command{Type: CmdStartCalibration}))
	var ack WSResponse
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, WSResponse{Type: "ack", Command: CmdStartCalibration}, ack)
	assert.Equal(t, []Command{{Type: CmdStartCalibration}}, cmds.sent())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_mode","mode":"kalman"}`)))
	var nack WSResponse
	require.NoError(t, conn.ReadJSON(&nack))
	assert.Equal(t, "error", nack.Type)
	assert.Contains(t, nack.Message, "set_mode")

	conn.Close()
	require.Eventually(t, func() bool {
		state.mu.RLock()
		defer state.mu.RUnlock()
		return len(state.clients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
