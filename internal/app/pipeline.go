// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/gamepad_motion/internal/calibstore"
	"github.com/relabs-tech/gamepad_motion/internal/config"
	"github.com/relabs-tech/gamepad_motion/internal/dsu"
	"github.com/relabs-tech/gamepad_motion/internal/imu"
	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

// Publisher sends a value as JSON to a topic.
type Publisher interface {
	Publish(topic string, v any) error
}

type mqttPublisher struct {
	client mqtt.Client
}

// Publish sends a retained QoS 0 message, the same way every topic in this
// project is published, so late subscribers get the last state immediately.
func (p mqttPublisher) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, true, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// AimMessage is the payload of the aim topic.
type AimMessage struct {
	Time        time.Time  `json:"time"`
	PlayerSpace motion.Aim `json:"player_space"`
	WorldSpace  motion.Aim `json:"world_space"`
}

// MotionMessage is the payload of the motion topic.
type MotionMessage struct {
	Time time.Time `json:"time"`
	motion.Snapshot
}

type broadcaster interface {
	Broadcast(dsu.MotionData)
}

// pipeline moves samples from a source through the engine and out to the
// publishers. All engine access happens on the goroutine calling step;
// commands from other goroutines are queued and applied there.
type pipeline struct {
	engine   *motion.GamepadMotion
	src      imu.Source
	clock    *imu.Clock
	pub      Publisher
	dsu      broadcaster
	commands chan Command

	yawRelaxFactor         float64
	sideReductionThreshold float64
	calibrationFile        string

	motionTopic      string
	aimTopic         string
	calibrationTopic string

	now    func() time.Time
	frames uint64
}

func newPipeline(cfg *config.Config, engine *motion.GamepadMotion, src imu.Source, pub Publisher) *pipeline {
	return &pipeline{
		engine:                 engine,
		src:                    src,
		clock:                  imu.NewClock(time.Duration(cfg.SampleInterval) * time.Millisecond),
		pub:                    pub,
		commands:               make(chan Command, 16),
		yawRelaxFactor:         cfg.YawRelaxFactor,
		sideReductionThreshold: cfg.SideReductionThreshold,
		calibrationFile:        cfg.CalibrationFile,
		motionTopic:            cfg.TopicMotion,
		aimTopic:               cfg.TopicAim,
		calibrationTopic:       cfg.TopicCalibration,
		now:                    time.Now,
	}
}

// submit queues a command without blocking. It returns false when the queue
// is full.
func (p *pipeline) submit(c Command) bool {
	select {
	case p.commands <- c:
		return true
	default:
		return false
	}
}

func (p *pipeline) drainCommands() {
	for {
		select {
		case c := <-p.commands:
			save, err := c.Apply(p.engine)
			if err != nil {
				log.Warnf("control: %v", err)
				continue
			}
			log.WithField("type", c.Type).Info("control: command applied")
			if save {
				if err := p.saveCalibration(); err != nil {
					log.Warnf("control: %v", err)
				}
			}
		default:
			return
		}
	}
}

// step reads one sample, runs it through the engine and publishes the result.
func (p *pipeline) step() (motion.Snapshot, error) {
	p.drainCommands()

	s, err := p.src.Next()
	if err != nil {
		return motion.Snapshot{}, err
	}
	ts := s.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}

	p.engine.ProcessMotion(s.Gyro(), s.Accel(), p.clock.DT(s))
	snap := p.engine.Snapshot(p.yawRelaxFactor, p.sideReductionThreshold)
	p.frames++

	if p.pub != nil {
		p.publish(ts, snap)
	}
	if p.dsu != nil {
		p.dsu.Broadcast(dsu.FromMotion(ts, snap.CalibratedGyro, s.Accel()))
	}
	return snap, nil
}

func (p *pipeline) publish(ts time.Time, snap motion.Snapshot) {
	if err := p.pub.Publish(p.motionTopic, MotionMessage{Time: ts, Snapshot: snap}); err != nil {
		log.Debugf("producer: %v", err)
	}
	aim := AimMessage{Time: ts, PlayerSpace: snap.PlayerSpace, WorldSpace: snap.WorldSpace}
	if err := p.pub.Publish(p.aimTopic, aim); err != nil {
		log.Debugf("producer: %v", err)
	}
	if err := p.pub.Publish(p.calibrationTopic, snap.Calibration); err != nil {
		log.Debugf("producer: %v", err)
	}
}

func (p *pipeline) saveCalibration() error {
	if p.calibrationFile == "" {
		return nil
	}
	rec := calibstore.FromEngine(p.engine)
	rec.SavedAt = p.now()
	if err := calibstore.Save(p.calibrationFile, rec); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"file":   p.calibrationFile,
		"bias":   rec.Offset.Bias,
		"weight": rec.Offset.Weight,
	}).Info("calibration saved")
	return nil
}

func logSnapshot(snap motion.Snapshot) {
	log.WithFields(log.Fields{
		"roll":       fmt.Sprintf("%.1f", snap.Pose.Roll),
		"pitch":      fmt.Sprintf("%.1f", snap.Pose.Pitch),
		"yaw":        fmt.Sprintf("%.1f", snap.Pose.Yaw),
		"player":     fmt.Sprintf("%+.2f,%+.2f", snap.PlayerSpace.X, snap.PlayerSpace.Y),
		"world":      fmt.Sprintf("%+.2f,%+.2f", snap.WorldSpace.X, snap.WorldSpace.Y),
		"mode":       snap.Calibration.Mode,
		"steady":     snap.Calibration.Steady,
		"confidence": fmt.Sprintf("%.2f", snap.Calibration.Confidence),
	}).Info("motion")
}
