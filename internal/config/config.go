package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/peripheral-controller/internal/fan"
	"github.com/thatsimonsguy/peripheral-controller/internal/heatercheck"
	"github.com/thatsimonsguy/peripheral-controller/internal/mqtt"
	"github.com/thatsimonsguy/peripheral-controller/internal/probe"
)

// File is the YAML layout of the controller configuration file. Optional
// tunables are pointers so an absent value can take its default.
type File struct {
	Database       string   `yaml:"database"`
	LogFile        string   `yaml:"log_file"`
	StatusInterval *float64 `yaml:"status_interval"`

	API     APIFile     `yaml:"api"`
	MQTT    MQTTFile    `yaml:"mqtt"`
	Datadog DatadogFile `yaml:"datadog"`
	Ntfy    NtfyFile    `yaml:"ntfy"`

	BLTouch       *ProbeFile        `yaml:"bltouch"`
	Fans          []FanFile         `yaml:"fans"`
	VerifyHeaters []HeaterCheckFile `yaml:"verify_heaters"`
	Heaters       []HeaterFile      `yaml:"heaters"`
}

type APIFile struct {
	Listen string `yaml:"listen"`
}

type MQTTFile struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	StatusTopic string `yaml:"status_topic"`
	FaultTopic  string `yaml:"fault_topic"`
}

type DatadogFile struct {
	Addr      string   `yaml:"addr"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

type NtfyFile struct {
	Topic string `yaml:"topic"`
}

type ProbeFile struct {
	Name          string   `yaml:"name"`
	ZOffset       *float64 `yaml:"z_offset"`
	PinMoveTime   *float64 `yaml:"pin_move_time"`
	TestSensorPin *bool    `yaml:"test_sensor_pin"`
	SensorChip    string   `yaml:"sensor_chip"`
	SensorPin     *int     `yaml:"sensor_pin"`
}

type FanFile struct {
	Name          string   `yaml:"name"`
	MaxPower      *float64 `yaml:"max_power"`
	KickStartTime *float64 `yaml:"kick_start_time"`
	OffBelow      *float64 `yaml:"off_below"`
	CycleTime     *float64 `yaml:"cycle_time"`
	HardwarePWM   *bool    `yaml:"hardware_pwm"`
	ShutdownSpeed *float64 `yaml:"shutdown_speed"`
}

type HeaterCheckFile struct {
	Heater        string   `yaml:"heater"`
	Hysteresis    *float64 `yaml:"hysteresis"`
	MaxError      *float64 `yaml:"max_error"`
	HeatingGain   *float64 `yaml:"heating_gain"`
	CheckGainTime *float64 `yaml:"check_gain_time"`
}

// HeaterFile describes a simulated heater backing a heater check.
type HeaterFile struct {
	Name         string   `yaml:"name"`
	Ambient      *float64 `yaml:"ambient"`
	MaxRate      *float64 `yaml:"max_rate"`
	CoolingCoeff *float64 `yaml:"cooling_coeff"`
}

// ProbeSensor selects the host GPIO line read as the probe sensor. A nil
// Pin leaves the sensor on the simulated probe.
type ProbeSensor struct {
	Chip string
	Pin  *int
}

type SimHeater struct {
	Name         string
	Ambient      float64
	MaxRate      float64
	CoolingCoeff float64
}

type Config struct {
	ConfigFile  string
	LogLevel    zerolog.Level
	LogFile     string
	DebugOutput bool

	Database       string
	StatusInterval time.Duration
	APIListen      string
	MQTT           MQTTFile
	Datadog        DatadogFile
	NtfyTopic      string

	Probe        *probe.Config
	ProbeSensor  ProbeSensor
	Fans         []fan.Config
	HeaterChecks []heatercheck.Config
	Heaters      []SimHeater
}

// Error lists every problem found in a configuration.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func Load() Config {
	var (
		configFile  string
		logLevel    string
		logFile     string
		debugOutput bool
	)

	flag.StringVar(&configFile, "config-file", "config.yaml", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "", "Log file path, stderr when empty")
	flag.BoolVar(&debugOutput, "debug-output", false, "Record-only mode, heater checks are disabled")
	flag.Parse()

	data, err := os.ReadFile(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	cfg, err := Parse(data)
	if err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.ConfigFile = configFile
	cfg.LogLevel = ParseLogLevel(logLevel)
	cfg.DebugOutput = debugOutput
	if logFile != "" {
		cfg.LogFile = logFile
	}
	return cfg
}

// Reload rereads the config file for a restart. Options given on the
// command line carry over from prev.
func Reload(prev Config) (Config, error) {
	data, err := os.ReadFile(prev.ConfigFile)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfigFile = prev.ConfigFile
	cfg.LogLevel = prev.LogLevel
	cfg.LogFile = prev.LogFile
	cfg.DebugOutput = prev.DebugOutput
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (Config, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	v := &validator{}
	cfg := Config{
		LogLevel:  zerolog.InfoLevel,
		LogFile:   f.LogFile,
		Database:  stringOr(f.Database, "data/journal.db"),
		APIListen: stringOr(f.API.Listen, ":8080"),
		MQTT: MQTTFile{
			Broker:      f.MQTT.Broker,
			ClientID:    stringOr(f.MQTT.ClientID, "peripheral-controller"),
			StatusTopic: stringOr(f.MQTT.StatusTopic, mqtt.DefaultStatusTopic),
			FaultTopic:  stringOr(f.MQTT.FaultTopic, mqtt.DefaultFaultTopic),
		},
		Datadog: DatadogFile{
			Addr:      f.Datadog.Addr,
			Namespace: stringOr(f.Datadog.Namespace, "peripherals."),
			Tags:      f.Datadog.Tags,
		},
		NtfyTopic: f.Ntfy.Topic,
	}

	interval := v.float("controller", "status_interval", f.StatusInterval, 5, above(0))
	cfg.StatusInterval = time.Duration(interval * float64(time.Second))

	if f.BLTouch != nil {
		cfg.Probe, cfg.ProbeSensor = v.probe(f.BLTouch)
	}
	cfg.Fans = v.fans(f.Fans)
	cfg.Heaters = v.heaters(f.Heaters)
	cfg.HeaterChecks = v.heaterChecks(f.VerifyHeaters, cfg.Heaters)

	if len(v.problems) > 0 {
		return Config{}, &Error{Problems: v.problems}
	}
	return cfg, nil
}

func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
