// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/relabs-tech/dyno_computer/internal/dyno"
)

// Config holds all application configuration values.
type Config struct {
	// Serial
	SerialPort                   string // empty means auto-detect
	SerialBaud                   int
	SerialReconnect              bool
	SerialReconnectMaxIntervalMs int
	MockRoller                   bool
	PortKeywords                 []string
	PortVIDs                     []uint16

	// Roller physics
	RollerDiameterMM float64
	StopTimeoutS     float64
	RotorInertia     float64 // kg·m²
	TorqueWindowS    float64
	StallDetection   bool

	// Dynamic zeroing
	ZeroSpeedThresh     float64 // km/h
	ZeroDurationS       float64
	ZeroVariationThresh float64 // km/h

	// Outlier filtering
	MaxTorque     float64 // N·m
	MaxPower      float64 // W
	OutlierFactor float64

	// Web Server
	WebServerPort  int
	WebDir         string
	PollIntervalMs int

	// MQTT
	MQTTEnabled  bool
	MQTTBroker   string
	MQTTClientID string // empty means generated
	TopicMetrics string

	// Display
	DisplayEnabled bool
	DisplayI2CBus  string
	DisplayI2CAddr uint16

	LogLevel logrus.Level
}

// Package-level unexported variables for the singleton:
//   - globalConfig is only reachable through InitGlobal and Get.
//   - configOnce makes InitGlobal run once.
//   - configMu guards globalConfig.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration the rig runs with when no file
// overrides a key.
func Default() *Config {
	s := dyno.DefaultSettings()
	return &Config{
		SerialBaud:                   9600,
		SerialReconnectMaxIntervalMs: 5000,
		PortKeywords:                 []string{"Arduino", "ttyACM", "ttyUSB", "usbmodem", "usbserial"},
		PortVIDs:                     []uint16{0x2341, 0x2A03, 0x1A86, 0x0403},

		RollerDiameterMM: s.RollerDiameterMM,
		StopTimeoutS:     s.StopTimeout.Seconds(),
		RotorInertia:     s.RotorInertia,
		TorqueWindowS:    s.TorqueWindow.Seconds(),
		StallDetection:   s.StallDetection,

		ZeroSpeedThresh:     s.ZeroSpeedThresh,
		ZeroDurationS:       s.ZeroDuration.Seconds(),
		ZeroVariationThresh: s.ZeroVariationThresh,

		MaxTorque:     s.MaxTorque,
		MaxPower:      s.MaxPower,
		OutlierFactor: s.OutlierFactor,

		WebServerPort:  8080,
		WebDir:         "web",
		PollIntervalMs: 200,

		MQTTBroker:   "tcp://localhost:1883",
		TopicMetrics: "dyno/metrics",

		DisplayI2CAddr: 0x3C,

		LogLevel: logrus.InfoLevel,
	}
}

// Load reads the configuration file and returns a Config struct. Keys absent
// from the file keep their defaults.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return FromMap(values)
}

// FromMap builds a Config from KEY=VALUE pairs on top of Default.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Default()
	for key, value := range values {
		if err := cfg.setValue(key, strings.TrimSpace(value)); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		c.SerialBaud, err = cast.ToIntE(value)
	case "SERIAL_RECONNECT":
		c.SerialReconnect, err = cast.ToBoolE(value)
	case "SERIAL_RECONNECT_MAX_INTERVAL_MS":
		c.SerialReconnectMaxIntervalMs, err = cast.ToIntE(value)
	case "MOCK_ROLLER":
		c.MockRoller, err = cast.ToBoolE(value)
	case "PORT_KEYWORDS":
		c.PortKeywords = splitList(value)
	case "PORT_VIDS":
		c.PortVIDs, err = parseVIDs(value)

	// Roller physics
	case "ROLLER_DIAMETER_MM":
		c.RollerDiameterMM, err = cast.ToFloat64E(value)
	case "STOP_TIMEOUT_S":
		c.StopTimeoutS, err = cast.ToFloat64E(value)
	case "ROTOR_INERTIA":
		c.RotorInertia, err = cast.ToFloat64E(value)
	case "TORQUE_WINDOW_S":
		c.TorqueWindowS, err = cast.ToFloat64E(value)
	case "STALL_DETECTION":
		c.StallDetection, err = cast.ToBoolE(value)

	// Dynamic zeroing
	case "ZERO_SPEED_THRESH":
		c.ZeroSpeedThresh, err = cast.ToFloat64E(value)
	case "ZERO_DURATION_S":
		c.ZeroDurationS, err = cast.ToFloat64E(value)
	case "ZERO_VARIATION_THRESH":
		c.ZeroVariationThresh, err = cast.ToFloat64E(value)

	// Outlier filtering
	case "MAX_TORQUE":
		c.MaxTorque, err = cast.ToFloat64E(value)
	case "MAX_POWER":
		c.MaxPower, err = cast.ToFloat64E(value)
	case "OUTLIER_FACTOR":
		c.OutlierFactor, err = cast.ToFloat64E(value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = cast.ToIntE(value)
	case "WEB_DIR":
		c.WebDir = value
	case "POLL_INTERVAL_MS":
		c.PollIntervalMs, err = cast.ToIntE(value)

	// MQTT
	case "MQTT_ENABLED":
		c.MQTTEnabled, err = cast.ToBoolE(value)
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_METRICS":
		c.TopicMetrics = value

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = cast.ToBoolE(value)
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		var addr uint64
		addr, err = strconv.ParseUint(value, 0, 16)
		c.DisplayI2CAddr = uint16(addr)

	case "LOG_LEVEL":
		c.LogLevel, err = logrus.ParseLevel(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return nil
}

// validate checks that values are usable.
func (c *Config) validate() error {
	if c.SerialBaud <= 0 {
		return fmt.Errorf("SERIAL_BAUD must be positive, got %d", c.SerialBaud)
	}
	if c.RollerDiameterMM <= 0 {
		return fmt.Errorf("ROLLER_DIAMETER_MM must be positive, got %g", c.RollerDiameterMM)
	}
	if c.StopTimeoutS <= 0 {
		return fmt.Errorf("STOP_TIMEOUT_S must be positive, got %g", c.StopTimeoutS)
	}
	if c.RotorInertia <= 0 {
		return fmt.Errorf("ROTOR_INERTIA must be positive, got %g", c.RotorInertia)
	}
	if c.TorqueWindowS <= 0 {
		return fmt.Errorf("TORQUE_WINDOW_S must be positive, got %g", c.TorqueWindowS)
	}
	if c.ZeroDurationS < 0 {
		return fmt.Errorf("ZERO_DURATION_S must not be negative, got %g", c.ZeroDurationS)
	}
	if c.OutlierFactor <= 0 {
		return fmt.Errorf("OUTLIER_FACTOR must be positive, got %g", c.OutlierFactor)
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive, got %d", c.PollIntervalMs)
	}
	if c.MQTTEnabled && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required when MQTT_ENABLED is set")
	}
	if c.TopicMetrics == "" {
		return fmt.Errorf("TOPIC_METRICS is required")
	}
	return nil
}

// Settings converts the physics and filter keys for the dyno pipeline.
func (c *Config) Settings() dyno.Settings {
	return dyno.Settings{
		RollerDiameterMM:    c.RollerDiameterMM,
		StopTimeout:         seconds(c.StopTimeoutS),
		RotorInertia:        c.RotorInertia,
		TorqueWindow:        seconds(c.TorqueWindowS),
		StallDetection:      c.StallDetection,
		ZeroSpeedThresh:     c.ZeroSpeedThresh,
		ZeroDuration:        seconds(c.ZeroDurationS),
		ZeroVariationThresh: c.ZeroVariationThresh,
		MaxTorque:           c.MaxTorque,
		MaxPower:            c.MaxPower,
		OutlierFactor:       c.OutlierFactor,
	}
}

// PollInterval returns the dashboard refresh cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ReconnectMaxInterval returns the ceiling for serial reconnect backoff.
func (c *Config) ReconnectMaxInterval() time.Duration {
	return time.Duration(c.SerialReconnectMaxIntervalMs) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseVIDs parses a comma separated list of hex USB vendor IDs, with or
// without a 0x prefix.
func parseVIDs(value string) ([]uint16, error) {
	var vids []uint16
	for _, item := range splitList(value) {
		item = strings.TrimPrefix(strings.ToLower(item), "0x")
		vid, err := strconv.ParseUint(item, 16, 16)
		if err != nil {
			return nil, err
		}
		vids = append(vids, uint16(vid))
	}
	return vids, nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// An empty configPath selects the built-in defaults.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Default()
			return
		}
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
