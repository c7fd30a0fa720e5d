// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/gamepad_motion/internal/motion"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicMotion      string // full motion.Snapshot
	TopicAim         string // player/world space aim only
	TopicCalibration string // calibration status
	TopicControl     string // incoming commands

	// Sample source: mock, serial, mpu9250 or replay
	SampleSource   string
	SerialPort     string
	SerialBaudRate int
	ReplayFile     string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Timing
	SampleInterval     int // milliseconds
	ConsoleLogInterval int // milliseconds

	// Motion engine
	CalibrationMode        string
	YawRelaxFactor         float64
	SideReductionThreshold float64
	CalibrationFile        string

	// Web Server
	WebServerPort int

	// DSU (cemuhook) server
	DSUEnabled bool
	DSUAddr    string
	DSUSlot    int

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int    // milliseconds
	DisplayContent        string // what to show: "aim", "orientation" or "calibration"

	LogLevel string
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value filled in. Required
// values (MQTT_BROKER) stay empty.
func Default() *Config {
	return &Config{
		MQTTClientIDProducer:   "gamepad-motion-producer",
		MQTTClientIDConsole:    "gamepad-motion-console",
		MQTTClientIDWeb:        "gamepad-motion-web",
		MQTTClientIDDisplay:    "gamepad-motion-display",
		TopicMotion:            "gamepad/motion",
		TopicAim:               "gamepad/aim",
		TopicCalibration:       "gamepad/calibration",
		TopicControl:           "gamepad/control",
		SampleSource:           "mock",
		SerialBaudRate:         115200,
		IMUSPIDevice:           "/dev/spidev0.0",
		IMUCSPin:               "8",
		SampleInterval:         10,
		ConsoleLogInterval:     1000,
		CalibrationMode:        "automatic",
		YawRelaxFactor:         1.41,
		SideReductionThreshold: 0.125,
		CalibrationFile:        "calibration.json",
		WebServerPort:          8080,
		DSUAddr:                "127.0.0.1:26760",
		DisplayI2CBus:          "",
		DisplayUpdateInterval:  200,
		DisplayContent:         "aim",
		LogLevel:               "info",
	}
}

// Load reads the configuration file and returns a Config struct. Files ending
// in .yaml or .yml are read as a YAML mapping of the same keys; anything else
// uses KEY=VALUE lines.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return ParseYAML(file)
	default:
		return Parse(file)
	}
}

// Parse reads KEY=VALUE lines. Empty lines and lines starting with # are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseYAML reads a flat YAML mapping whose keys are the KEY=VALUE names.
func ParseYAML(r io.Reader) (*Config, error) {
	var doc map[string]yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// apply in file order so errors point at the first bad line
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return doc[keys[i]].Line < doc[keys[j]].Line })

	cfg := Default()
	for _, key := range keys {
		node := doc[key]
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("config line %d: %s must be a scalar", node.Line, key)
		}
		if err := cfg.setValue(key, node.Value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", node.Line, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseInt(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_MOTION":
		c.TopicMotion = value
	case "TOPIC_AIM":
		c.TopicAim = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value
	case "TOPIC_CONTROL":
		c.TopicControl = value

	// Sample source
	case "SAMPLE_SOURCE":
		c.SampleSource = strings.ToLower(value)
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value, 1, 4_000_000)
	case "REPLAY_FILE":
		c.ReplayFile = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		var v int
		v, err = parseInt(key, value, 0, 3)
		c.IMUAccelRange = byte(v)
	case "IMU_GYRO_RANGE":
		var v int
		v, err = parseInt(key, value, 0, 3)
		c.IMUGyroRange = byte(v)

	// Timing
	case "SAMPLE_INTERVAL":
		c.SampleInterval, err = parseInt(key, value, 1, 1000)
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseInt(key, value, 1, 3_600_000)

	// Motion engine
	case "CALIBRATION_MODE":
		c.CalibrationMode = value
	case "YAW_RELAX_FACTOR":
		c.YawRelaxFactor, err = parseFloat(key, value)
	case "SIDE_REDUCTION_THRESHOLD":
		c.SideReductionThreshold, err = parseFloat(key, value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1, 65535)

	// DSU
	case "DSU_ENABLED":
		c.DSUEnabled, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid DSU_ENABLED %q: %w", value, err)
		}
	case "DSU_ADDR":
		c.DSUAddr = value
	case "DSU_SLOT":
		c.DSUSlot, err = parseInt(key, value, 0, 3)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 1, 60_000)
	case "DISPLAY_CONTENT":
		c.DisplayContent = strings.ToLower(value)

	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set and that values which
// depend on each other agree.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	switch c.SampleSource {
	case "mock":
	case "serial":
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SAMPLE_SOURCE=serial")
		}
	case "mpu9250":
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required when SAMPLE_SOURCE=mpu9250")
		}
	case "replay":
		if c.ReplayFile == "" {
			return fmt.Errorf("REPLAY_FILE is required when SAMPLE_SOURCE=replay")
		}
	default:
		return fmt.Errorf("SAMPLE_SOURCE must be mock, serial, mpu9250 or replay, got %q", c.SampleSource)
	}
	if c.YawRelaxFactor < 0 {
		return fmt.Errorf("YAW_RELAX_FACTOR must not be negative, got %g", c.YawRelaxFactor)
	}
	if c.SideReductionThreshold < 0 || c.SideReductionThreshold >= 1 {
		return fmt.Errorf("SIDE_REDUCTION_THRESHOLD must be in [0, 1), got %g", c.SideReductionThreshold)
	}
	switch c.DisplayContent {
	case "aim", "orientation", "calibration":
	default:
		return fmt.Errorf("DISPLAY_CONTENT must be aim, orientation or calibration, got %q", c.DisplayContent)
	}
	if _, err := motion.ParseCalibrationMode(c.CalibrationMode); err != nil {
		return fmt.Errorf("CALIBRATION_MODE: %w", err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.DSUEnabled && c.DSUAddr == "" {
		return fmt.Errorf("DSU_ADDR is required when DSU_ENABLED=true")
	}
	return nil
}

// Mode returns the parsed CALIBRATION_MODE. validate has already checked it.
func (c *Config) Mode() motion.CalibrationMode {
	m, _ := motion.ParseCalibrationMode(c.CalibrationMode)
	return m
}

// Level returns the parsed LOG_LEVEL, info if unset.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads; later calls return nil without reloading.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
