// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/gamepad_motion/internal/config"
	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

func formatPose(m MotionMessage) string {
	return fmt.Sprintf(
		"[POSE] ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f  GRAV=(%+.2f,%+.2f,%+.2f)",
		m.Pose.Roll, m.Pose.Pitch, m.Pose.Yaw,
		m.Gravity.X, m.Gravity.Y, m.Gravity.Z,
	)
}

func formatAim(a AimMessage) string {
	return fmt.Sprintf(
		"[AIM ] PLAYER=(%+8.2f,%+8.2f)  WORLD=(%+8.2f,%+8.2f)",
		a.PlayerSpace.X, a.PlayerSpace.Y, a.WorldSpace.X, a.WorldSpace.Y,
	)
}

func formatCalibration(c motion.CalibrationStatus) string {
	state := "moving"
	if c.Steady {
		state = "steady"
	}
	if c.Calibrating {
		state += ",calibrating"
	}
	return fmt.Sprintf(
		"[CAL ] mode=%s %s conf=%.2f bias=(%+.3f,%+.3f,%+.3f) w=%d",
		c.Mode, state, c.Confidence,
		c.Offset.Bias.X, c.Offset.Bias.Y, c.Offset.Bias.Z, c.Offset.Weight,
	)
}

// decodeAndPrint returns an MQTT handler that prints every message of type
// T with format.
func decodeAndPrint[T any](name string, format func(T) string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			log.Printf("console: %s unmarshal error: %v", name, err)
			return
		}
		fmt.Println(format(v))
	}
}

// RunConsoleMQTT prints the producer's output as it arrives on MQTT.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{cfg.TopicMotion, decodeAndPrint("motion", formatPose)},
		{cfg.TopicAim, decodeAndPrint("aim", formatAim)},
		{cfg.TopicCalibration, decodeAndPrint("calibration", formatCalibration)},
	}
	for _, s := range subscriptions {
		token := client.Subscribe(s.topic, 0, s.handler)
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", s.topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
