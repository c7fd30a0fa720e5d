// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/gamepad_motion/internal/calibstore"
	"github.com/relabs-tech/gamepad_motion/internal/config"
	"github.com/relabs-tech/gamepad_motion/internal/dsu"
	"github.com/relabs-tech/gamepad_motion/internal/motion"
	"github.com/relabs-tech/gamepad_motion/internal/sensors"
)

// A source failing this many reads in a row is treated as gone.
const maxSampleErrors = 50

var sampleErrorBackoff = 20 * time.Millisecond

// newEngine builds the engine for cfg and restores any saved calibration.
func newEngine(cfg *config.Config) *motion.GamepadMotion {
	engine := motion.New()
	engine.SetCalibrationMode(cfg.Mode())

	if cfg.CalibrationFile == "" {
		return engine
	}
	rec, err := calibstore.Load(cfg.CalibrationFile)
	switch {
	case errors.Is(err, calibstore.ErrNotFound):
		log.Printf("no saved calibration at %s, starting uncalibrated", cfg.CalibrationFile)
	case err != nil:
		log.Warnf("ignoring saved calibration: %v", err)
	default:
		rec.Apply(engine)
		log.WithFields(log.Fields{
			"bias":     rec.Offset.Bias,
			"weight":   rec.Offset.Weight,
			"saved_at": rec.SavedAt.Format(time.RFC3339),
		}).Info("restored calibration")
	}
	return engine
}

// RunMotionProducer reads the configured sample source, runs the motion
// engine and publishes motion, aim and calibration state over MQTT. With
// DSU_ENABLED it also serves the calibrated stream to cemuhook clients.
func RunMotionProducer() error {
	log.Println("starting gamepad-motion producer")

	cfg := config.Get()

	src, err := sensors.Open(cfg)
	if err != nil {
		return fmt.Errorf("open sample source: %w", err)
	}
	defer src.Close()
	log.Printf("using %s sample source", cfg.SampleSource)

	engine := newEngine(cfg)

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)

	p := newPipeline(cfg, engine, src, mqttPublisher{client: client})

	// Commands arrive on paho's goroutine; the pipeline applies them on the
	// sample loop so the engine is never shared.
	controlHandler := func(_ mqtt.Client, msg mqtt.Message) {
		cmd, err := ParseCommand(msg.Payload())
		if err != nil {
			log.Warnf("control: %v", err)
			return
		}
		if !p.submit(cmd) {
			log.Warnf("control: queue full, dropping %s", cmd.Type)
		}
	}
	if token := client.Subscribe(cfg.TopicControl, 0, controlHandler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", cfg.TopicControl, token.Error())
	}
	log.Printf("listening for commands on %s", cfg.TopicControl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DSUEnabled {
		srv, err := dsu.NewServer(cfg.DSUAddr, cfg.DSUSlot)
		if err != nil {
			return fmt.Errorf("start DSU server: %w", err)
		}
		defer srv.Close()
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Warnf("dsu: %v", err)
			}
		}()
		p.dsu = srv
		log.Printf("DSU server on %s, slot %d", srv.Addr(), cfg.DSUSlot)
	}

	err = runLoop(ctx, cfg, p)
	if serr := p.saveCalibration(); serr != nil {
		log.Warnf("save calibration: %v", serr)
	}
	return err
}

// runLoop drives the pipeline until ctx is done or the source ends. Serial
// sources pace themselves; the others are polled on SAMPLE_INTERVAL. Failed
// reads are retried after a short pause until maxSampleErrors occur in a row.
func runLoop(ctx context.Context, cfg *config.Config, p *pipeline) error {
	logEvery := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond
	var (
		lastLog  time.Time
		failures int
	)

	handle := func() (done bool, err error) {
		snap, err := p.step()
		if errors.Is(err, io.EOF) {
			log.Println("sample source finished")
			return true, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			failures++
			if failures >= maxSampleErrors {
				return true, fmt.Errorf("%d consecutive sample errors: %w", failures, err)
			}
			log.Printf("sample error: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(sampleErrorBackoff):
			}
			return false, nil
		}
		failures = 0
		if logEvery > 0 && time.Since(lastLog) >= logEvery {
			lastLog = time.Now()
			logSnapshot(snap)
		}
		return false, nil
	}

	if cfg.SampleSource == "serial" {
		// unblock a pending read on shutdown
		go func() {
			<-ctx.Done()
			p.src.Close()
		}()
		for ctx.Err() == nil {
			if done, err := handle(); done || err != nil {
				return err
			}
		}
		return nil
	}

	ticker := time.NewTicker(time.Duration(cfg.SampleInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("shutting down producer")
			return nil
		case <-ticker.C:
			if done, err := handle(); done || err != nil {
				return err
			}
		}
	}
}
