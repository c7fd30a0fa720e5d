// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/gamepad_motion/internal/config"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// displayData holds the latest motion message for the display loop.
type displayData struct {
	mu     sync.RWMutex
	motion MotionMessage
	have   bool
}

func (d *displayData) set(m MotionMessage) {
	d.mu.Lock()
	d.motion = m
	d.have = true
	d.mu.Unlock()
}

func (d *displayData) get() (MotionMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.motion, d.have
}

// drawLines renders up to four lines of 7x13 text onto a blank frame.
func drawLines(x int, lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(x, lineHeight*(i+1))
		drawer.DrawString(line)
	}
	return img
}

// renderScreen draws one frame of the given content.
func renderScreen(content string, m MotionMessage, have bool) (*image1bit.VerticalLSB, error) {
	var title string
	switch content {
	case "aim":
		title = "Aim"
	case "orientation":
		title = "Orientation"
	case "calibration":
		title = "Calibration"
	default:
		return nil, fmt.Errorf("unknown display content type: %s", content)
	}
	if !have {
		return drawLines(0, "", title, "Waiting..."), nil
	}

	switch content {
	case "aim":
		return drawLines(0,
			fmt.Sprintf("PX:%+7.1f", m.PlayerSpace.X),
			fmt.Sprintf("PY:%+7.1f", m.PlayerSpace.Y),
			fmt.Sprintf("WX:%+7.1f", m.WorldSpace.X),
			fmt.Sprintf("WY:%+7.1f", m.WorldSpace.Y),
		), nil
	case "orientation":
		return drawLines(0,
			fmt.Sprintf("R: %6.1f", m.Pose.Roll),
			fmt.Sprintf("P: %6.1f", m.Pose.Pitch),
			fmt.Sprintf("Y: %6.1f", m.Pose.Yaw),
		), nil
	default:
		c := m.Calibration
		state := "moving"
		if c.Steady {
			state = "steady"
		}
		return drawLines(0,
			fmt.Sprintf("%s %s", c.Mode, state),
			fmt.Sprintf("conf %.2f w %d", c.Confidence, c.Offset.Weight),
			fmt.Sprintf("%+.2f %+.2f", c.Offset.Bias.X, c.Offset.Bias.Y),
			fmt.Sprintf("%+.2f", c.Offset.Bias.Z),
		), nil
	}
}

func splashScreen() *image1bit.VerticalLSB {
	return drawLines(10, "", "Gamepad", "Motion", "starting...")
}

// RunDisplay shows the producer's output on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized, showing %s", cfg.DisplayContent)

	if err := dev.Draw(dev.Bounds(), splashScreen(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicMotion, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m MotionMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("display: motion unmarshal error: %v", err)
			return
		}
		data.set(m)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicMotion)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		m, have := data.get()
		img, err := renderScreen(cfg.DisplayContent, m, have)
		if err != nil {
			return err
		}
		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}
