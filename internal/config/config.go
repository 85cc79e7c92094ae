// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Transport names accepted by TRANSPORT.
const (
	TransportBLE  = "ble"
	TransportMQTT = "mqtt"
	TransportMem  = "mem"
)

// Config holds all application configuration values.
type Config struct {
	// Link
	Transport             string
	DeviceName            string
	AdvertiseRestartDelay int // milliseconds
	ScanWindow            int // milliseconds

	// MQTT transport
	MQTTBroker          string
	MQTTTopicPrefix     string
	MQTTClientIDSensing string
	MQTTClientIDDisplay string

	// IMU Hardware: "mpu9250" or "mock"
	IMUSource    string
	IMUSPIDevice string
	IMUCSPin     string
	IMUCalibrate bool

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Sensing loop
	SampleInterval int // milliseconds
	ModelPath      string

	// Operator control: "stdin" or a serial device path
	ControlPort     string
	ControlBaudRate int

	// Display side
	QueueSize     int
	DisplayKind   string // "ssd1306" or "console"
	DisplayI2CBus string // "" picks the first bus

	// Stepper: "gpio" or "sim"
	StepperKind      string
	StepperPins      []string // IN1..IN4
	StepperStepDelay int      // milliseconds
	PulseSteps       int

	// Web Server (display side status feed), 0 disables it
	WebServerPort int

	// Logging
	LogLevel string
	LogFile  string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access; Get takes the read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys absent from the file.
// Timing values follow the original firmware: 500 ms advertise restart,
// 5 s scan window, 115200 baud control port.
func Default() *Config {
	return &Config{
		Transport:             TransportBLE,
		DeviceName:            "XIAO_ESP32S3",
		AdvertiseRestartDelay: 500,
		ScanWindow:            5000,
		MQTTBroker:            "tcp://localhost:1883",
		MQTTTopicPrefix:       "gesture",
		IMUSource:             "mpu9250",
		IMUSPIDevice:          "/dev/spidev0.0",
		IMUCSPin:              "GPIO8",
		SampleInterval:        100,
		ModelPath:             "models/gestures.json",
		ControlPort:           "stdin",
		ControlBaudRate:       115200,
		QueueSize:             8,
		DisplayKind:           "ssd1306",
		StepperKind:           "gpio",
		StepperPins:           []string{"GPIO17", "GPIO18", "GPIO27", "GPIO22"},
		StepperStepDelay:      2,
		PulseSteps:            100,
		WebServerPort:         8080,
		LogLevel:              "info",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
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

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Link
	case "TRANSPORT":
		switch value {
		case TransportBLE, TransportMQTT, TransportMem:
			c.Transport = value
		default:
			return fmt.Errorf("TRANSPORT must be ble, mqtt or mem, got %q", value)
		}
	case "DEVICE_NAME":
		c.DeviceName = value
	case "ADVERTISE_RESTART_DELAY":
		c.AdvertiseRestartDelay, err = parseInt(key, value, 0, 60000)
	case "SCAN_WINDOW":
		c.ScanWindow, err = parseInt(key, value, 100, 60000)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = value
	case "MQTT_CLIENT_ID_SENSING":
		c.MQTTClientIDSensing = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// IMU
	case "IMU_SOURCE":
		if value != "mpu9250" && value != "mock" {
			return fmt.Errorf("IMU_SOURCE must be mpu9250 or mock, got %q", value)
		}
		c.IMUSource = value
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_CALIBRATE":
		c.IMUCalibrate, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_CALIBRATE %q: %w", value, err)
		}
	case "IMU_ACCEL_RANGE":
		var v int
		v, err = parseInt(key, value, 0, 3)
		c.IMUAccelRange = byte(v)
	case "IMU_GYRO_RANGE":
		var v int
		v, err = parseInt(key, value, 0, 3)
		c.IMUGyroRange = byte(v)

	// Sensing loop
	case "SAMPLE_INTERVAL":
		c.SampleInterval, err = parseInt(key, value, 1, 60000)
	case "MODEL_PATH":
		c.ModelPath = value

	// Control
	case "CONTROL_PORT":
		c.ControlPort = value
	case "CONTROL_BAUD_RATE":
		c.ControlBaudRate, err = parseInt(key, value, 1200, 4000000)

	// Display side
	case "QUEUE_SIZE":
		c.QueueSize, err = parseInt(key, value, 1, 1024)
	case "DISPLAY_KIND":
		if value != "ssd1306" && value != "console" {
			return fmt.Errorf("DISPLAY_KIND must be ssd1306 or console, got %q", value)
		}
		c.DisplayKind = value
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value

	// Stepper
	case "STEPPER_KIND":
		if value != "gpio" && value != "sim" {
			return fmt.Errorf("STEPPER_KIND must be gpio or sim, got %q", value)
		}
		c.StepperKind = value
	case "STEPPER_PINS":
		pins := strings.Split(value, ",")
		for i := range pins {
			pins[i] = strings.TrimSpace(pins[i])
		}
		if len(pins) != 4 {
			return fmt.Errorf("STEPPER_PINS needs 4 comma separated pins, got %d", len(pins))
		}
		c.StepperPins = pins
	case "STEPPER_STEP_DELAY":
		c.StepperStepDelay, err = parseInt(key, value, 1, 1000)
	case "PULSE_STEPS":
		c.PulseSteps, err = parseInt(key, value, 1, 100000)

	// Web
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 0, 65535)

	// Logging
	case "LOG_LEVEL":
		switch value {
		case "debug", "info", "warn", "error":
			c.LogLevel = value
		default:
			return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", value)
		}
	case "LOG_FILE":
		c.LogFile = value

	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return err
}

// validate checks fields every role needs.
func (c *Config) validate() error {
	if c.Transport == TransportMQTT && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required for TRANSPORT=mqtt")
	}
	return nil
}

// ValidateSensing checks the fields the sensing unit needs.
func (c *Config) ValidateSensing() error {
	if c.Transport == TransportBLE && c.DeviceName == "" {
		return fmt.Errorf("DEVICE_NAME is required for TRANSPORT=ble")
	}
	if c.IMUSource == "mpu9250" && (c.IMUSPIDevice == "" || c.IMUCSPin == "") {
		return fmt.Errorf("IMU_SPI_DEVICE and IMU_CS_PIN are required for IMU_SOURCE=mpu9250")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if c.ControlPort == "" {
		return fmt.Errorf("CONTROL_PORT is required")
	}
	return nil
}

// ValidateDisplay checks the fields the display unit needs.
func (c *Config) ValidateDisplay() error {
	if c.StepperKind == "gpio" && len(c.StepperPins) != 4 {
		return fmt.Errorf("STEPPER_PINS is required for STEPPER_KIND=gpio")
	}
	if c.PulseSteps <= 0 {
		return fmt.Errorf("PULSE_STEPS must be positive")
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c *Config) SampleEvery() time.Duration        { return ms(c.SampleInterval) }
func (c *Config) AdvertiseRestart() time.Duration   { return ms(c.AdvertiseRestartDelay) }
func (c *Config) ScanWindowDuration() time.Duration { return ms(c.ScanWindow) }
func (c *Config) StepDelay() time.Duration          { return ms(c.StepperStepDelay) }

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
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
